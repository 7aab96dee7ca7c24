package match

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/cases"
)

// asciiPunct mirrors the ASCII punctuation set stripped by the
// alphanumeric-only comparison.
const asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var folder = cases.Fold()

// Fold trims and case-folds s for caseless comparison.
func Fold(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// Normalize produces the canonical comparison key used when reconciling
// artist names across upstreams: trim, case-fold, then transliterate every
// mark, number, punctuation, and symbol character to its closest ASCII
// form. Letters are left as-is.
func Normalize(s string) string {
	return ReplaceUnicode(Fold(s))
}

// ReplaceUnicode replaces each character whose Unicode general category is
// Mark, Number, Punctuation, or Symbol with its closest ASCII
// transliteration.
func ReplaceUnicode(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		if unicode.In(r, unicode.M, unicode.N, unicode.P, unicode.S) {
			b.WriteString(unidecode.Unidecode(string(r)))
		} else {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// Transliterate converts s to its closest Latin transcription.
func Transliterate(s string) string {
	return unidecode.Unidecode(s)
}

// StripNonAlnum removes ASCII punctuation and all whitespace.
func StripNonAlnum(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(asciiPunct, r) {
			return -1
		}
		return r
	}, s)
}

// StripNonASCII removes every non-ASCII character. This is a stricter
// filter than Transliterate: characters with no ASCII equivalent are
// dropped rather than approximated.
func StripNonASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
}
