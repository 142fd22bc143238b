package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	speechURLPattern          = regexp.MustCompile(`https?://\S+`)
	speechMarkdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	speechListMarkerPattern   = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)
	// Abbreviations common in agency documents, read out in full.
	speechAbbreviations = []struct {
		re   *regexp.Regexp
		full string
	}{
		{regexp.MustCompile(`(?i)(^|\s)ул\.\s*`), "${1}улица "},
		{regexp.MustCompile(`(?i)(^|\s)бул\.\s*`), "${1}булевард "},
		{regexp.MustCompile(`(?i)(^|\s)гр\.\s*`), "${1}град "},
		{regexp.MustCompile(`(?i)(^|\s)тел\.\s*`), "${1}телефон "},
		{regexp.MustCompile(`(?i)(\d)\s*ч\.`), "${1} часа."},
		{regexp.MustCompile(`(?i)(\d)\s*лв\.`), "${1} лева."},
	}
)

// speechText turns an answer into text a synthesizer reads naturally:
// markup and links are dropped and abbreviations expanded.
func speechText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = speechMarkdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = speechURLPattern.ReplaceAllString(raw, " ")
	raw = speechListMarkerPattern.ReplaceAllString(raw, "")
	for _, a := range speechAbbreviations {
		raw = a.re.ReplaceAllString(raw, a.full)
	}
	raw = strings.NewReplacer("*", " ", "_", " ", "#", " ", "|", " ", "~", " ", "`", " ").Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r), unicode.In(r, unicode.So, unicode.Sk):
			continue
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}
