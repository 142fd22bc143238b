package knowledge

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitterKeepsShortTextWhole(t *testing.T) {
	s := Splitter{Size: 100, Overlap: 10}
	got := s.Split("Кратък текст.")
	if len(got) != 1 || got[0] != "Кратък текст." {
		t.Fatalf("Split() = %q, want single chunk", got)
	}
}

func TestSplitterRespectsSizeAndOverlap(t *testing.T) {
	words := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		words = append(words, "дума")
	}
	text := strings.Join(words, " ")
	s := Splitter{Size: 50, Overlap: 20}
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("Split() produced %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 50 {
			t.Fatalf("chunk %d has %d runes, want <= 50", i, n)
		}
	}
	// Consecutive chunks share the overlap tail.
	if !strings.HasPrefix(chunks[1], "дума дума") {
		t.Fatalf("chunk 1 = %q, want overlapping prefix", chunks[1])
	}
}

func TestSplitterPrefersParagraphs(t *testing.T) {
	text := strings.Repeat("а", 40) + "\n\n" + strings.Repeat("б", 40)
	chunks := Splitter{Size: 50, Overlap: 0}.Split(text)
	if len(chunks) != 2 {
		t.Fatalf("Split() = %d chunks, want 2", len(chunks))
	}
	if chunks[0] != strings.Repeat("а", 40) || chunks[1] != strings.Repeat("б", 40) {
		t.Fatalf("unexpected chunks: %q", chunks)
	}
}

func TestSplitterHardSplitsLongWords(t *testing.T) {
	chunks := Splitter{Size: 10, Overlap: 0}.Split(strings.Repeat("x", 25))
	if len(chunks) != 3 {
		t.Fatalf("Split() = %d chunks, want 3: %q", len(chunks), chunks)
	}
}
