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
	nonWord = regexp.MustCompile(`[^\w\s-]`)
	spaces  = regexp.MustCompile(`\s+`)
	dashes  = regexp.MustCompile(`-{2,}`)
)

// Make lower-cases s, strips diacritics and punctuation and joins words with hyphens.
func Make(s string) string {
	lower := strings.ToLower(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, lower)
	if err != nil {
		stripped = lower
	}

	out := nonWord.ReplaceAllString(stripped, "")
	out = spaces.ReplaceAllString(strings.TrimSpace(out), "-")
	out = dashes.ReplaceAllString(out, "-")

	return strings.Trim(out, "-")
}
