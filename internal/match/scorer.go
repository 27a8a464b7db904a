package match

import (
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Score computes a 0-100 similarity between two normalized strings.
//
// Both inputs are split into whitespace tokens, the tokens sorted, and an
// edit-based similarity computed between the sorted-token strings, so token
// order never matters. When one string is much shorter than the other, a
// partial alignment of the shorter against windows of the longer is also
// considered at a 0.9 weight, so "acme inc" still scores high against
// "acme incorporated".
//
// Guarantees: Score(a, a) == 100 for non-empty a, Score("", x) == 0 for
// non-empty x, and Score(a, b) == Score(b, a) for all inputs.
func Score(a, b string) int {
	sa := sortTokens(a)
	sb := sortTokens(b)

	if sa == sb {
		if sa == "" {
			return 0
		}
		return 100
	}
	if sa == "" || sb == "" {
		return 0
	}

	full := ratio(sa, sb)

	shorter, longer := sa, sb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	// Only bring in the partial alignment when lengths diverge enough that
	// the full ratio punishes a clean prefix/abbreviation match.
	if float64(len(longer)) >= 1.5*float64(len(shorter)) {
		partial := int(math.Round(0.9 * float64(partialRatio(shorter, longer))))
		if partial > full {
			return partial
		}
	}

	return full
}

// sortTokens splits on whitespace, sorts the tokens and rejoins them.
func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// ratio is the normalized Levenshtein similarity of two strings, 0-100.
func ratio(a, b string) int {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}

	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(dist)/float64(maxLen))))
}

// partialRatio slides a window the length of the shorter string across the
// longer one and returns the best window ratio.
func partialRatio(shorter, longer string) int {
	if len(shorter) == 0 {
		return 0
	}
	if len(shorter) >= len(longer) {
		return ratio(shorter, longer)
	}

	best := 0
	for i := 0; i+len(shorter) <= len(longer); i++ {
		r := ratio(shorter, longer[i:i+len(shorter)])
		if r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}
