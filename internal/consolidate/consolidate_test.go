package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
		delta    float64
	}{
		{"identical", "BYD", "BYD", 1.0, 0},
		{"identical after normalization", "Mercedes-Benz", "mercedes benz", 1.0, 0},
		{"case folded", "Volkswagen", "VOLKSWAGEN", 1.0, 0},
		{"substring ratio", "BYD", "BYD Auto", 3.0 / 7.0, 0.01},
		{"typo pair", "Volkswagen", "Volkswagon", 0.9, 0.01},
		{"looser typo", "Volkswagen", "Volkswogon", 0.8, 0.01},
		{"unrelated", "Toyota", "比亚迪", 0.0, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Similarity(tt.a, tt.b), tt.delta)
		})
	}
}

func TestSimilarityIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"Volkswagen", "Volkswagon"},
		{"宋PLUS", "宋Plus"},
		{"BYD", "BYD Auto"},
	}
	for _, p := range pairs {
		assert.InDelta(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), 1e-9)
	}
}

func TestGroupNamesMergesSimilar(t *testing.T) {
	// Mention counts survive the merge summed onto one canonical.
	counts := map[string]int{
		"Volkswagen": 5,
		"Volkswagon": 3,
		"比亚迪":        4,
	}
	require.GreaterOrEqual(t, Similarity("Volkswagen", "Volkswagon"), MergeThreshold)

	groups := GroupNames(counts, MergeThreshold)
	require.Len(t, groups, 2)

	var vw *Group
	for i := range groups {
		if groups[i].Canonical == "Volkswagen" {
			vw = &groups[i]
		}
	}
	require.NotNil(t, vw, "Volkswagen must win the canonical tie-break")
	assert.Equal(t, 8, vw.MentionCount)
	assert.Equal(t, []string{"Volkswagon"}, vw.Aliases)
}

func TestGroupNamesKeepsDistinctApart(t *testing.T) {
	counts := map[string]int{"Toyota": 2, "Honda": 3, "吉利": 1}
	groups := GroupNames(counts, MergeThreshold)
	assert.Len(t, groups, 3)
}

func TestGroupNamesTransitiveChain(t *testing.T) {
	// a~b and b~c each score 0.9 but a~c only 0.8; the transitive union
	// still pulls all three into one group.
	counts := map[string]int{
		"Volkswagen": 1,
		"Volkswagon": 1,
		"Volkswogon": 1,
	}
	require.Less(t, Similarity("Volkswagen", "Volkswogon"), MergeThreshold)

	groups := GroupNames(counts, MergeThreshold)
	require.Len(t, groups, 1)
	assert.Equal(t, "Volkswagen", groups[0].Canonical)
	assert.Equal(t, 3, groups[0].MentionCount)
}

func TestCanonicalTieBreak(t *testing.T) {
	// Longer cleaned string wins.
	assert.True(t, preferCanonical("BYD Auto", "BYD"))
	// Equal length prefers Latin.
	assert.True(t, preferCanonical("byd", "比亚迪"))
	assert.False(t, preferCanonical("比亚迪", "byd"))
	// Final tie-break is lexicographic.
	assert.True(t, preferCanonical("Audi", "Benz"))
}

func TestGroupNamesEmptyInput(t *testing.T) {
	assert.Empty(t, GroupNames(nil, MergeThreshold))
}

func TestMergeCandidatesDirectional(t *testing.T) {
	counts := map[string]int{"Volkswagen": 5, "Volkswagon": 3}
	candidates := MergeCandidates(counts, "brand", MergeThreshold)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Volkswagon", candidates[0].SourceName)
	assert.Equal(t, "Volkswagen", candidates[0].TargetName)
	assert.GreaterOrEqual(t, candidates[0].Similarity, MergeThreshold)
}
