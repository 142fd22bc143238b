// Package policy masks personal data in transcripts before they are logged or stored.
package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	ibanPattern  = regexp.MustCompile(`(?i)\b[A-Z]{2}\d{2}(?:\s?[A-Z0-9]{4}){3,7}(?:\s?[A-Z0-9]{1,4})?\b`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	// Bulgarian personal number (ЕГН): ten digits.
	egnPattern   = regexp.MustCompile(`\b\d{10}\b`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
)

var redactions = []struct {
	pattern *regexp.Regexp
	marker  string
}{
	{emailPattern, "[REDACTED_EMAIL]"},
	{ibanPattern, "[REDACTED_IBAN]"},
	// Cards before phones so long digit runs are not classified as phone numbers.
	{cardPattern, "[REDACTED_CARD]"},
	{egnPattern, "[REDACTED_ID]"},
	{phonePattern, "[REDACTED_PHONE]"},
}

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range redactions {
		next := r.pattern.ReplaceAllString(out, r.marker)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// Redacted is RedactPII without the change flag.
func Redacted(input string) string {
	out, _ := RedactPII(input)
	return out
}
