package extract

import (
	"regexp"
	"strings"

	"github.com/koehnden/dragon-lens/internal/model"
)

// List structure detection. An answer counts as list-formatted when at least
// two marker matches exist, or when it contains a Markdown table with at
// least two data rows.
var (
	listMarker     = regexp.MustCompile(`(?m)^\s*(?:\d{1,2}[.、)．]\s*|[-*•]\s+|#{1,6}\s+)`)
	tableRow       = regexp.MustCompile(`(?m)^\s*\|.+\|\s*$`)
	tableSeparator = regexp.MustCompile(`^\s*\|?[\s:|-]+\|?\s*$`)

	// Markers after which a list item stops talking about its headline
	// entity and starts comparing it to others.
	comparisonMarker = regexp.MustCompile(`(?i)相比|对比|不如|优于|而|vs\.?|versus|compared (?:to|with)`)
	clauseSeparator  = regexp.MustCompile(`[，。；：,;:]`)
)

const minListMarkers = 2

// primaryRegionMinCut keeps very early separators from truncating the
// headline, e.g. a rank prefix like "1、比亚迪：...".
const primaryRegionMinCut = 5

// ListInfo is the structural analysis of one answer.
type ListInfo struct {
	Intro string
	Items []string
}

// IsList reports whether the answer had list structure.
func (li *ListInfo) IsList() bool {
	return li != nil && len(li.Items) > 0
}

// AnalyzeList splits an answer into intro text and list items. Returns a
// ListInfo with no items for unstructured answers.
func AnalyzeList(text string) *ListInfo {
	if rows := dataTableRows(text); len(rows) >= 2 {
		intro := text
		if idx := strings.Index(text, "|"); idx >= 0 {
			intro = text[:idx]
		}
		return &ListInfo{Intro: strings.TrimSpace(intro), Items: rows}
	}

	locs := listMarker.FindAllStringIndex(text, -1)
	if len(locs) < minListMarkers {
		return &ListInfo{Intro: strings.TrimSpace(text)}
	}

	info := &ListInfo{Intro: strings.TrimSpace(text[:locs[0][0]])}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		item := strings.TrimSpace(text[loc[1]:end])
		if item != "" {
			info.Items = append(info.Items, item)
		}
	}
	return info
}

// dataTableRows extracts the data rows of a Markdown table, skipping the
// header row and the separator row.
func dataTableRows(text string) []string {
	rows := tableRow.FindAllString(text, -1)
	if len(rows) < 3 {
		return nil
	}

	var data []string
	seenHeader := false
	for _, row := range rows {
		if tableSeparator.MatchString(row) {
			seenHeader = true
			continue
		}
		if !seenHeader {
			continue
		}
		data = append(data, strings.TrimSpace(strings.Trim(strings.TrimSpace(row), "|")))
	}
	if !seenHeader {
		return nil
	}
	return data
}

// PrimaryRegion returns the prefix of a list item that still describes its
// headline entity: the item up to the first comparison marker or clause
// separator past the minimum cut position.
func PrimaryRegion(item string) string {
	runes := []rune(item)
	cut := len(runes)

	if loc := comparisonMarker.FindStringIndex(item); loc != nil {
		if pos := len([]rune(item[:loc[0]])); pos > primaryRegionMinCut && pos < cut {
			cut = pos
		}
	}
	for _, loc := range clauseSeparator.FindAllStringIndex(item, -1) {
		pos := len([]rune(item[:loc[0]]))
		if pos > primaryRegionMinCut {
			if pos < cut {
				cut = pos
			}
			break
		}
	}
	return string(runes[:cut])
}

// FilterResult is the outcome of the list-aware primary-entity filter.
type FilterResult struct {
	Kept     []model.ScoredCandidate
	Rejected []string
}

// FilterPrimary applies the primary-entity rule: inside each list item only
// the first candidate name per role in the item's primary region survives,
// so an item like "比亚迪宋PLUS" keeps its headline brand and headline
// product while later names in the same item count as comparisons, not
// mentions. Knowledge-validated candidates always bypass the rule.
// Candidates appearing only in the intro or in no item at all are kept
// untouched.
func FilterPrimary(info *ListInfo, candidates []model.ScoredCandidate) FilterResult {
	if !info.IsList() {
		return FilterResult{Kept: candidates}
	}

	primaries := make(map[int]map[model.EntityType]string, len(info.Items))
	inItem := make(map[string]int)
	for _, cand := range candidates {
		role := candidateRole(cand)
		for i, item := range info.Items {
			idx := indexFold(item, cand.Name)
			if idx < 0 {
				continue
			}
			if _, claimed := inItem[cand.Name]; !claimed {
				inItem[cand.Name] = i
			}
			region := PrimaryRegion(item)
			if indexFold(region, cand.Name) < 0 {
				continue
			}
			if primaries[i] == nil {
				primaries[i] = make(map[model.EntityType]string, 2)
			}
			if current, ok := primaries[i][role]; !ok || earlier(region, cand.Name, current) {
				primaries[i][role] = cand.Name
			}
		}
	}

	var result FilterResult
	for _, cand := range candidates {
		item, appears := inItem[cand.Name]
		if !appears || cand.Bypass {
			result.Kept = append(result.Kept, cand)
			continue
		}
		if primaries[item][candidateRole(cand)] == cand.Name {
			result.Kept = append(result.Kept, cand)
			continue
		}
		result.Rejected = append(result.Rejected, cand.Name)
	}
	return result
}

// candidateRole collapses the transient Unknown type onto the brand role so
// the filter never splits one item into three primary slots.
func candidateRole(cand model.ScoredCandidate) model.EntityType {
	if cand.Type == model.EntityTypeProduct {
		return model.EntityTypeProduct
	}
	return model.EntityTypeBrand
}

func indexFold(haystack, needle string) int {
	return strings.Index(strings.ToLower(haystack), strings.ToLower(needle))
}

// earlier reports whether candidate a occurs before b inside region.
func earlier(region, a, b string) bool {
	ia, ib := indexFold(region, a), indexFold(region, b)
	if ib < 0 {
		return ia >= 0
	}
	return ia >= 0 && ia < ib
}
