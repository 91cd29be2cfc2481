package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	rrnPattern   = regexp.MustCompile(`\b\d{6}-[1-4]\d{6}\b`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
)

// minPhoneDigits keeps model numbers and storage sizes ("15 128 256") out of phone redaction.
const minPhoneDigits = 9

// RedactPII masks common high-risk PII patterns before text is remembered.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	next = rrnPattern.ReplaceAllString(out, "[REDACTED_RRN]")
	changed = changed || next != out
	out = next

	// Cards before phones so long digit runs are not classified as phone numbers.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllStringFunc(out, func(m string) string {
		if countDigits(m) < minPhoneDigits || !looksLikePhone(m) {
			return m
		}
		return "[REDACTED_PHONE]"
	})
	changed = changed || next != out
	out = next

	return out, changed
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// looksLikePhone rejects runs made of short space-separated numbers.
func looksLikePhone(s string) bool {
	if strings.ContainsAny(s, "-()+") {
		return true
	}
	for _, part := range strings.Fields(s) {
		if len(part) >= 7 {
			return true
		}
	}
	return false
}
