// Package consolidate merges near-duplicate entity names across the answers
// of a run into canonical groups.
package consolidate

import (
	"strings"

	"github.com/koehnden/dragon-lens/internal/textnorm"
)

// MergeThreshold is the default similarity at or above which two names are
// considered the same entity.
const MergeThreshold = 0.85

// Similarity scores how likely two surface names refer to the same entity.
// Identical normalized forms score 1.0; substring containment scores by
// length ratio; everything else falls back to Ratcliff-Obershelp matching
// over the normalized forms.
func Similarity(a, b string) float64 {
	na, nb := textnorm.EntityKey(a), textnorm.EntityKey(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}

	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		la, lb := len([]rune(na)), len([]rune(nb))
		if la > lb {
			la, lb = lb, la
		}
		return float64(la) / float64(lb)
	}

	return ratcliffObershelp([]rune(na), []rune(nb))
}

// ratcliffObershelp computes the classic sequence-matching ratio: twice the
// number of matching characters over the total length, with matches found by
// recursively splitting around the longest common substring.
func ratcliffObershelp(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 0
	}
	return 2.0 * float64(matchingChars(a, b)) / float64(total)
}

func matchingChars(a, b []rune) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	matched := size
	matched += matchingChars(a[:ai], b[:bi])
	matched += matchingChars(a[ai+size:], b[bi+size:])
	return matched
}

func longestCommonSubstring(a, b []rune) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	// lengths[j] is the length of the common suffix ending at a[i], b[j].
	lengths := make([]int, len(b))
	for i := range a {
		prevDiag := 0
		for j := range b {
			diag := lengths[j]
			if a[i] == b[j] {
				lengths[j] = prevDiag + 1
				if lengths[j] > size {
					size = lengths[j]
					ai = i - size + 1
					bi = j - size + 1
				}
			} else {
				lengths[j] = 0
			}
			prevDiag = diag
		}
	}
	return ai, bi, size
}
