// Package extract implements the per-answer entity extraction pipeline:
// candidate generation, rule classification, list-aware filtering, and
// mention ranking.
package extract

import (
	"regexp"
	"strings"

	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/textnorm"
)

// Candidate regex families. Generation maximizes recall; precision is the
// classifier's job.
var (
	// Latin model codes such as RAV4, X5, iX3, EQB260.
	latinModelCode = regexp.MustCompile(`\b[A-Z][A-Za-z]{0,9}\d[A-Za-z0-9-]*`)

	// Han tokens carrying a product suffix, e.g. 宋PLUS, 汉DM-i, 海豹EV.
	hanWithSuffix = regexp.MustCompile(`\p{Han}{1,6}(?:PLUS|Plus|Pro|PRO|Max|MAX|Ultra|GT|DM-i|DMi|DM|EV|L\d?)`)

	// Mixed Han plus Latin/digit tokens, e.g. 坦克300, 智己L6.
	mixedHanLatin = regexp.MustCompile(`\p{Han}{1,6}[A-Za-z0-9][A-Za-z0-9-]*`)

	// Bare Han runs; maximal runs are sliced below.
	hanRun = regexp.MustCompile(`\p{Han}{2,}`)

	// Capitalized Latin words, the usual shape of Western brand names.
	capitalizedWord = regexp.MustCompile(`\b[A-Z][a-zA-Z]{2,}(?:[ -][A-Z][a-zA-Z]{2,})?\b`)

	// Quoted strings in either ASCII or CJK quote styles.
	quotedString = regexp.MustCompile(`[“"『「《]([^”"』」》]{1,30})[”"』」》]`)
)

const maxHanCandidateLen = 6

// Generator produces entity candidates from one answer's text. It is a pure
// function of the text and the configured seed set.
type Generator struct {
	seeds []string
}

// NewGenerator creates a candidate generator. Seeds are the vertical's
// primary brand and its known aliases; they match exactly regardless of any
// regex family.
func NewGenerator(seeds ...string) *Generator {
	cleaned := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return &Generator{seeds: cleaned}
}

// Generate returns the deduplicated candidate set for text. The input should
// already be normalized with textnorm.NormalizeForNER.
func (g *Generator) Generate(text string) []model.EntityCandidate {
	seen := make(map[string]struct{})
	var out []model.EntityCandidate

	add := func(name string, source model.CandidateSource) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := textnorm.EntityKey(name)
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, model.EntityCandidate{
			Name:   name,
			Source: source,
			Type:   model.EntityTypeUnknown,
		})
	}

	for _, seed := range g.seeds {
		if containsFold(text, seed) {
			add(seed, model.SourceSeed)
		}
	}

	for _, m := range quotedString.FindAllStringSubmatch(text, -1) {
		add(m[1], model.SourceQuoted)
	}

	// Suffix and mixed-script families run before bare Han runs so 宋PLUS
	// is captured whole rather than only as 宋.
	for _, m := range hanWithSuffix.FindAllString(text, -1) {
		add(m, model.SourceRegex)
	}
	for _, m := range mixedHanLatin.FindAllString(text, -1) {
		add(m, model.SourceRegex)
	}
	for _, m := range latinModelCode.FindAllString(text, -1) {
		add(m, model.SourceRegex)
	}
	for _, m := range capitalizedWord.FindAllString(text, -1) {
		add(m, model.SourceRegex)
	}
	for _, run := range hanRun.FindAllString(text, -1) {
		for _, slice := range sliceHanRun(run) {
			add(slice, model.SourceRegex)
		}
	}

	// Sub-token expansion: multi-word hits may hide a model code.
	for _, cand := range out {
		if !strings.ContainsRune(cand.Name, ' ') {
			continue
		}
		for _, token := range strings.Fields(cand.Name) {
			if latinModelCode.MatchString(token) {
				add(token, model.SourceRegex)
			}
		}
	}

	return out
}

// sliceHanRun keeps short Han runs whole and window-slices long ones, since
// unsegmented Chinese prose concatenates names with surrounding words.
func sliceHanRun(run string) []string {
	runes := []rune(run)
	if len(runes) <= maxHanCandidateLen {
		return []string{run}
	}
	var out []string
	for width := 2; width <= 4; width++ {
		for i := 0; i+width <= len(runes); i++ {
			out = append(out, string(runes[i:i+width]))
		}
	}
	return out
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// ContainsFold reports whether haystack contains needle case-insensitively.
func ContainsFold(haystack, needle string) bool {
	return containsFold(haystack, needle)
}
