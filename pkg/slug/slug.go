// Package slug builds URL-safe identifiers for catalog records.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	disallowed = regexp.MustCompile(`[^a-z0-9\s-]`)
	whitespace = regexp.MustCompile(`\s+`)
	dashes     = regexp.MustCompile(`-+`)
)

// Make lower-cases value, drops accents and non-alphanumerics, turns whitespace
// into dashes and collapses repeated dashes.
func Make(value string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), value)
	if err != nil {
		folded = value
	}
	out := strings.ToLower(strings.TrimSpace(folded))
	out = disallowed.ReplaceAllString(out, "")
	out = whitespace.ReplaceAllString(out, "-")
	out = dashes.ReplaceAllString(out, "-")
	return strings.Trim(out, "-")
}
