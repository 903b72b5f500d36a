package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Generate creates a URL-friendly slug from name. Accents are stripped by
// decomposing to NFD and dropping combining marks, so "Café Doña Lupe" becomes
// "cafe-dona-lupe".
func Generate(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		s = strings.ToLower(strings.TrimSpace(name))
	}
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// WithSuffix appends suffix to base, used to disambiguate a taken slug.
func WithSuffix(base, suffix string) string {
	if suffix == "" {
		return base
	}
	return base + "-" + Generate(suffix)
}
