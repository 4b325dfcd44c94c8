package extract

import (
	"sort"
	"strings"

	"github.com/koehnden/dragon-lens/internal/model"
)

// RankEntities assigns 1-based textual ranks to entity names. For
// list-formatted answers, intro appearances rank 1 and list items rank by
// item position. Unstructured answers rank by first textual occurrence
// across all variant strings. Ranks never exceed model.MaxRank.
func RankEntities(info *ListInfo, variants map[string][]string) map[string]int {
	ranks := make(map[string]int, len(variants))

	if info.IsList() {
		rankListFormatted(info, variants, ranks)
		return ranks
	}

	rankByOccurrence(info.Intro, variants, ranks)
	return ranks
}

func rankListFormatted(info *ListInfo, variants map[string][]string, ranks map[string]int) {
	next := 1
	if info.Intro != "" {
		for name, forms := range variants {
			if firstIndex(info.Intro, forms) >= 0 {
				ranks[name] = 1
			}
		}
		if len(ranks) > 0 {
			next = 2
		}
	}

	for _, item := range info.Items {
		var best string
		bestIdx := -1
		for name, forms := range variants {
			if _, done := ranks[name]; done {
				continue
			}
			idx := firstIndex(item, forms)
			if idx < 0 {
				continue
			}
			if bestIdx < 0 || idx < bestIdx {
				best, bestIdx = name, idx
			}
		}
		if bestIdx < 0 {
			continue
		}
		ranks[best] = capRank(next)
		next++
	}

	// Names present in the answer but never the headline of an item still
	// rank by occurrence order after the item entities.
	var remaining []string
	full := info.Intro + "\n" + strings.Join(info.Items, "\n")
	for name := range variants {
		if _, done := ranks[name]; !done && firstIndex(full, variants[name]) >= 0 {
			remaining = append(remaining, name)
		}
	}
	orderByOccurrence(full, remaining, variants, func(name string) {
		ranks[name] = capRank(next)
		next++
	})
}

func rankByOccurrence(text string, variants map[string][]string, ranks map[string]int) {
	names := make([]string, 0, len(variants))
	for name := range variants {
		if firstIndex(text, variants[name]) >= 0 {
			names = append(names, name)
		}
	}
	rank := 1
	orderByOccurrence(text, names, variants, func(name string) {
		ranks[name] = capRank(rank)
		rank++
	})
}

// orderByOccurrence visits names in order of their first occurrence in text.
func orderByOccurrence(text string, names []string, variants map[string][]string, visit func(string)) {
	type pos struct {
		name string
		idx  int
	}
	positions := make([]pos, 0, len(names))
	for _, name := range names {
		if idx := firstIndex(text, variants[name]); idx >= 0 {
			positions = append(positions, pos{name: name, idx: idx})
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].idx != positions[j].idx {
			return positions[i].idx < positions[j].idx
		}
		return positions[i].name < positions[j].name
	})
	for _, p := range positions {
		visit(p.name)
	}
}

// firstIndex returns the earliest occurrence of any variant form in text.
func firstIndex(text string, forms []string) int {
	best := -1
	for _, form := range forms {
		if idx := indexFold(text, form); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	return best
}

func capRank(rank int) int {
	if rank > model.MaxRank {
		return model.MaxRank
	}
	return rank
}
