package platform

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSanitizedLength bounds sanitized filename tokens. Kept deliberately
// short so renamed downloads stay URL-friendly.
const MaxSanitizedLength = 10

var asciiFold = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
)

// SanitizeFilename normalizes a proposed filename to a safe ASCII token:
// accents are decomposed and stripped, anything outside alphanumeric,
// dot, dash, underscore and whitespace is removed, whitespace runs collapse
// to single underscores, and the result is truncated to MaxSanitizedLength.
// Total function: unmappable input degrades to the empty string.
func SanitizeFilename(name string) string {
	folded, _, err := transform.String(asciiFold, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	collapsed := strings.Join(strings.Fields(b.String()), "_")
	if len(collapsed) > MaxSanitizedLength {
		collapsed = collapsed[:MaxSanitizedLength]
	}
	return collapsed
}
