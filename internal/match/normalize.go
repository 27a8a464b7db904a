// Package match implements the deterministic matching core: normalization,
// field similarity scoring, pair evaluation and the best-match search.
package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripAccents removes combining marks after NFD decomposition, turning
// "Élodie" into "Elodie".
var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize converts a raw field value into its canonical comparable form:
// diacritics removed, lowercased, every run of characters outside [a-z0-9 ]
// replaced by a single space, whitespace collapsed and trimmed.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	ascii, _, err := transform.String(stripAccents, s)
	if err != nil {
		ascii = s
	}
	ascii = strings.ToLower(ascii)

	var b strings.Builder
	b.Grow(len(ascii))
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeCompact is Normalize with all spaces removed. Used for SKU
// comparison, where separators are noise: "X-500" and "X500" compare equal.
func NormalizeCompact(s string) string {
	return strings.ReplaceAll(Normalize(s), " ", "")
}

// NumericTokens extracts every maximal digit run from the raw
// (pre-normalization) string. Leading zeros are preserved, so "007" and "7"
// are distinct tokens.
func NumericTokens(s string) map[string]struct{} {
	tokens := make(map[string]struct{})

	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens[s[start:i]] = struct{}{}
			start = -1
		}
	}
	if start >= 0 {
		tokens[s[start:]] = struct{}{}
	}

	return tokens
}

// disjointTokens reports whether two non-empty token sets share no element.
func disjointTokens(a, b map[string]struct{}) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for t := range a {
		if _, ok := b[t]; ok {
			return false
		}
	}
	return true
}
