package validators

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SanitizeString normalizes free-text input: NFC form, control characters
// dropped, whitespace runs collapsed to one space. maxLen counts runes; zero
// means no limit.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, norm.NFC.String(input))
	out := []rune(strings.Join(strings.Fields(cleaned), " "))
	if maxLen > 0 && len(out) > maxLen {
		out = out[:maxLen]
	}
	return string(out)
}
