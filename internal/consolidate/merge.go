package consolidate

import (
	"sort"
	"unicode"

	"github.com/koehnden/dragon-lens/internal/model"
)

// unionFind is a disjoint-set over dense integer ids with path compression.
// Merging through set union instead of walking a forwarding map guarantees
// termination regardless of the pair order similarity scoring produces.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

// Group is one canonical entity produced by merging.
type Group struct {
	Canonical    string
	Aliases      []string
	MentionCount int
}

// GroupNames clusters raw names by pairwise similarity at or above
// threshold, picking a canonical representative per cluster and summing
// mention counts. Names are assigned stable integer ids; clustering is a
// union over all qualifying pairs, so transitively similar names land in
// one group.
func GroupNames(counts map[string]int, threshold float64) []Group {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	uf := newUnionFind(len(names))
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if Similarity(names[i], names[j]) >= threshold {
				uf.union(i, j)
			}
		}
	}

	members := make(map[int][]string)
	for i, name := range names {
		root := uf.find(i)
		members[root] = append(members[root], name)
	}

	groups := make([]Group, 0, len(members))
	for _, cluster := range members {
		canonical := cluster[0]
		for _, name := range cluster[1:] {
			if preferCanonical(name, canonical) {
				canonical = name
			}
		}

		g := Group{Canonical: canonical}
		for _, name := range cluster {
			g.MentionCount += counts[name]
			if name != canonical {
				g.Aliases = append(g.Aliases, name)
			}
		}
		sort.Strings(g.Aliases)
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Canonical < groups[j].Canonical })
	return groups
}

// preferCanonical reports whether a should be canonical over b: the longer
// cleaned string wins, equal lengths prefer Latin letters, and the final
// tie-break is lexicographic.
func preferCanonical(a, b string) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	if la != lb {
		return la > lb
	}
	aLatin, bLatin := hasLatin(a), hasLatin(b)
	if aLatin != bLatin {
		return aLatin
	}
	return a < b
}

func hasLatin(s string) bool {
	for _, r := range s {
		if r <= unicode.MaxASCII && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// MergeCandidates lists the qualifying pairs without applying them, for
// debug output and dry runs.
func MergeCandidates(counts map[string]int, entityType model.EntityType, threshold float64) []model.MergeCandidate {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []model.MergeCandidate
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			sim := Similarity(names[i], names[j])
			if sim < threshold {
				continue
			}
			source, target := names[i], names[j]
			if preferCanonical(source, target) {
				source, target = target, source
			}
			out = append(out, model.MergeCandidate{
				SourceName: source,
				TargetName: target,
				Type:       entityType,
				Similarity: sim,
			})
		}
	}
	return out
}
