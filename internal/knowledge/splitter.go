package knowledge

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order, coarsest first. The empty separator splits runes.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter cuts text into chunks of at most Size runes, carrying up to
// Overlap runes of trailing context into the next chunk.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

func (s Splitter) Split(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	if s.Size <= 0 {
		s.Size = 1000
	}
	if s.Overlap < 0 || s.Overlap >= s.Size {
		s.Overlap = 0
	}
	return s.split(text, seps)
}

func (s Splitter) split(text string, seps []string) []string {
	sep, rest := "", []string(nil)
	for i, c := range seps {
		if c == "" || strings.Contains(text, c) {
			sep, rest = c, seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		pieces = strings.Split(text, sep)
	}

	var out, fitting []string
	for _, p := range pieces {
		if strings.TrimSpace(p) == "" && sep != "" {
			continue
		}
		if utf8.RuneCountInString(p) <= s.Size {
			fitting = append(fitting, p)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, s.merge(fitting, sep)...)
			fitting = nil
		}
		if len(rest) == 0 {
			out = append(out, s.merge(runes(p), "")...)
		} else {
			out = append(out, s.split(p, rest)...)
		}
	}
	if len(fitting) > 0 {
		out = append(out, s.merge(fitting, sep)...)
	}
	return out
}

// merge packs pieces into chunks no longer than Size, keeping an Overlap tail.
func (s Splitter) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	var (
		docs  []string
		cur   []string
		total int
	)
	joinLen := func() int {
		if len(cur) > 0 {
			return sepLen
		}
		return 0
	}
	emit := func() {
		if doc := strings.TrimSpace(strings.Join(cur, sep)); doc != "" {
			docs = append(docs, doc)
		}
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n+joinLen() > s.Size && len(cur) > 0 {
			emit()
			for total > s.Overlap || (total > 0 && total+n+joinLen() > s.Size) {
				total -= utf8.RuneCountInString(cur[0])
				if len(cur) > 1 {
					total -= sepLen
				}
				cur = cur[1:]
			}
		}
		total += n + joinLen()
		cur = append(cur, p)
	}
	emit()
	return docs
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
