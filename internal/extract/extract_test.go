package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/textnorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidateNames(candidates []model.EntityCandidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return names
}

func TestGeneratorFindsModelCodes(t *testing.T) {
	g := NewGenerator()
	text := textnorm.NormalizeForNER("I would recommend the Toyota RAV4 or the BMW X5.")

	names := candidateNames(g.Generate(text))
	assert.Contains(t, names, "RAV4")
	assert.Contains(t, names, "X5")
	assert.Contains(t, names, "Toyota")
}

func TestGeneratorFindsChineseSuffixTokens(t *testing.T) {
	g := NewGenerator()
	text := textnorm.NormalizeForNER("比亚迪宋PLUS和汉DM-i都值得考虑")

	names := candidateNames(g.Generate(text))
	assert.Contains(t, names, "宋PLUS")
	assert.Contains(t, names, "汉DM-i")
}

func TestGeneratorSeedsAndQuotes(t *testing.T) {
	g := NewGenerator("蔚来", "NIO")
	text := textnorm.NormalizeForNER(`蔚来的"ES6"很受欢迎`)

	candidates := g.Generate(text)
	bySource := make(map[string]model.CandidateSource)
	for _, c := range candidates {
		bySource[c.Name] = c.Source
	}
	assert.Equal(t, model.SourceSeed, bySource["蔚来"])
	assert.Equal(t, model.SourceQuoted, bySource["ES6"])
	assert.NotContains(t, bySource, "NIO", "absent seeds are not invented")
}

func TestGeneratorDeduplicatesByKey(t *testing.T) {
	g := NewGenerator("BYD")
	text := "BYD is great. byd makes the best cars. BYD!"

	names := candidateNames(g.Generate(text))
	count := 0
	for _, n := range names {
		if strings.EqualFold(n, "BYD") {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestClassifierRejectsGenericTerms(t *testing.T) {
	c := NewClassifier(nil)

	for _, term := range []string{"自主", "产品质量", "quality", "性价比"} {
		_, ok := c.Classify(model.EntityCandidate{Name: term, Source: model.SourceRegex})
		assert.False(t, ok, "generic term %q must be rejected", term)
	}
}

func TestClassifierRejectsDescriptorsAndClauses(t *testing.T) {
	c := NewClassifier(nil)

	for _, name := range []string{"很好看", "可靠性", "excellent", "比亚迪，吉利"} {
		_, ok := c.Classify(model.EntityCandidate{Name: name})
		assert.False(t, ok, "%q must be rejected", name)
	}
}

func TestClassifierKnowledgeBypassBeatsGenericTerm(t *testing.T) {
	// A validated name is kept even when the generic-term rule would fire.
	knowledge := &model.AugmentationContext{
		BrandBypass: map[string]struct{}{model.FoldKey("自主"): {}},
	}
	c := NewClassifier(knowledge)

	scored, ok := c.Classify(model.EntityCandidate{Name: "自主"})
	require.True(t, ok)
	assert.True(t, scored.Bypass)
	assert.Equal(t, model.EntityTypeBrand, scored.Type)
	assert.InDelta(t, 0.92, scored.BrandScore, 1e-9)
}

func TestClassifierScores(t *testing.T) {
	c := NewClassifier(nil)

	tests := []struct {
		name         string
		expectedType model.EntityType
		minScore     float64
	}{
		{"RAV4", model.EntityTypeProduct, 0.85},
		{"宋PLUS", model.EntityTypeProduct, 0.80},
		{"比亚迪", model.EntityTypeBrand, 0.75},
		{"Toyota", model.EntityTypeBrand, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scored, ok := c.Classify(model.EntityCandidate{Name: tt.name})
			require.True(t, ok)
			assert.Equal(t, tt.expectedType, scored.Type)
			assert.GreaterOrEqual(t, scored.Score(), tt.minScore)
		})
	}
}

func TestClassifierScoresWithinBounds(t *testing.T) {
	c := NewClassifier(nil)
	names := []string{"RAV4", "比亚迪", "Toyota", "xx", "长城汽车H6", "ID4", "smart"}

	for _, name := range names {
		scored, ok := c.Classify(model.EntityCandidate{Name: name})
		if !ok {
			continue
		}
		assert.GreaterOrEqual(t, scored.BrandScore, MinConfidence, name)
		assert.LessOrEqual(t, scored.BrandScore, MaxConfidence, name)
		assert.GreaterOrEqual(t, scored.ProductScore, MinConfidence, name)
		assert.LessOrEqual(t, scored.ProductScore, MaxConfidence, name)
	}
}

func TestAnalyzeListNumbered(t *testing.T) {
	text := "以下是推荐:\n1. 大众\n2. 奥迪\n3. 宝马\n4. 比亚迪\n5. 长安"
	info := AnalyzeList(text)

	require.True(t, info.IsList())
	assert.Equal(t, "以下是推荐:", info.Intro)
	require.Len(t, info.Items, 5)
	assert.Equal(t, "大众", info.Items[0])
	assert.Equal(t, "长安", info.Items[4])
}

func TestAnalyzeListMarkdownTable(t *testing.T) {
	text := "对比如下:\n| 品牌 | 评分 |\n| --- | --- |\n| 比亚迪 | 9 |\n| 吉利 | 8 |"
	info := AnalyzeList(text)

	require.True(t, info.IsList())
	require.Len(t, info.Items, 2)
	assert.Contains(t, info.Items[0], "比亚迪")
	assert.Contains(t, info.Items[1], "吉利")
}

func TestAnalyzeListUnstructured(t *testing.T) {
	info := AnalyzeList("我个人比较推荐比亚迪,它的电池技术领先。")
	assert.False(t, info.IsList())
	assert.NotEmpty(t, info.Intro)
}

func TestPrimaryRegionCutsAtComparison(t *testing.T) {
	region := PrimaryRegion("比亚迪宋PLUS是个好选择 相比吉利星越L更省油")
	assert.Contains(t, region, "比亚迪宋PLUS")
	assert.NotContains(t, region, "吉利")
}

func TestPrimaryRegionKeepsEarlySeparator(t *testing.T) {
	// A separator within the first few runes is a rank prefix, not a
	// clause boundary.
	region := PrimaryRegion("哈弗H6：销量冠军，油耗略高")
	assert.Contains(t, region, "哈弗H6")
	assert.NotContains(t, region, "油耗")
}

func TestFilterPrimaryKeepsHeadlineRejectsComparisons(t *testing.T) {
	info := AnalyzeList("推荐:\n1. 比亚迪宋PLUS 比吉利星越L更好\n2. 长安CS75")
	candidates := []model.ScoredCandidate{
		{EntityCandidate: model.EntityCandidate{Name: "比亚迪宋PLUS", Type: model.EntityTypeProduct}},
		{EntityCandidate: model.EntityCandidate{Name: "吉利星越L", Type: model.EntityTypeProduct}},
		{EntityCandidate: model.EntityCandidate{Name: "长安CS75", Type: model.EntityTypeProduct}},
	}

	result := FilterPrimary(info, candidates)

	var kept []string
	for _, c := range result.Kept {
		kept = append(kept, c.Name)
	}
	assert.Contains(t, kept, "比亚迪宋PLUS")
	assert.Contains(t, kept, "长安CS75")
	assert.Contains(t, result.Rejected, "吉利星越L")
}

func TestFilterPrimaryKeepsOnePerRole(t *testing.T) {
	// An item holds a headline brand and a headline product at once; only
	// the trailing second product is a comparison.
	info := AnalyzeList("推荐:\n1. 比亚迪 宋PLUS 比 汉DM-i 好\n2. 长安")
	candidates := []model.ScoredCandidate{
		{EntityCandidate: model.EntityCandidate{Name: "比亚迪", Type: model.EntityTypeBrand}},
		{EntityCandidate: model.EntityCandidate{Name: "宋PLUS", Type: model.EntityTypeProduct}},
		{EntityCandidate: model.EntityCandidate{Name: "汉DM-i", Type: model.EntityTypeProduct}},
		{EntityCandidate: model.EntityCandidate{Name: "长安", Type: model.EntityTypeBrand}},
	}

	result := FilterPrimary(info, candidates)
	var kept []string
	for _, c := range result.Kept {
		kept = append(kept, c.Name)
	}
	assert.ElementsMatch(t, []string{"比亚迪", "宋PLUS", "长安"}, kept)
	assert.Equal(t, []string{"汉DM-i"}, result.Rejected)
}

func TestFilterPrimaryBypassForceKeeps(t *testing.T) {
	info := AnalyzeList("推荐:\n1. 比亚迪 和吉利同级\n2. 长安")
	candidates := []model.ScoredCandidate{
		{EntityCandidate: model.EntityCandidate{Name: "比亚迪", Type: model.EntityTypeBrand}},
		{EntityCandidate: model.EntityCandidate{Name: "吉利", Type: model.EntityTypeBrand}, Bypass: true},
		{EntityCandidate: model.EntityCandidate{Name: "长安", Type: model.EntityTypeBrand}},
	}

	result := FilterPrimary(info, candidates)
	var kept []string
	for _, c := range result.Kept {
		kept = append(kept, c.Name)
	}
	assert.ElementsMatch(t, []string{"比亚迪", "吉利", "长安"}, kept)
	assert.Empty(t, result.Rejected)
}

func TestRankEntitiesListScenario(t *testing.T) {
	// Five single-brand list items rank 1 through 5 in item order.
	text := "1. 大众\n2. 奥迪\n3. 宝马\n4. 比亚迪\n5. 长安"
	info := AnalyzeList(text)
	variants := map[string][]string{
		"大众": {"大众"}, "奥迪": {"奥迪"}, "宝马": {"宝马"},
		"比亚迪": {"比亚迪"}, "长安": {"长安"},
	}

	ranks := RankEntities(info, variants)
	assert.Equal(t, map[string]int{"大众": 1, "奥迪": 2, "宝马": 3, "比亚迪": 4, "长安": 5}, ranks)
}

func TestRankEntitiesIntroRanksFirst(t *testing.T) {
	text := "首推比亚迪。\n1. 吉利\n2. 长安"
	info := AnalyzeList(text)
	variants := map[string][]string{
		"比亚迪": {"比亚迪"}, "吉利": {"吉利"}, "长安": {"长安"},
	}

	ranks := RankEntities(info, variants)
	assert.Equal(t, 1, ranks["比亚迪"])
	assert.Equal(t, 2, ranks["吉利"])
	assert.Equal(t, 3, ranks["长安"])
}

func TestRankEntitiesUnstructuredFallback(t *testing.T) {
	info := AnalyzeList("我推荐Toyota,其次是Honda。")
	variants := map[string][]string{
		"Toyota": {"Toyota", "丰田"},
		"Honda":  {"Honda"},
	}

	ranks := RankEntities(info, variants)
	assert.Equal(t, 1, ranks["Toyota"])
	assert.Equal(t, 2, ranks["Honda"])
}

func TestRankNeverExceedsCap(t *testing.T) {
	var sb strings.Builder
	variants := make(map[string][]string)
	for i := 0; i < 15; i++ {
		name := fmt.Sprintf("Brand%c", 'A'+i)
		fmt.Fprintf(&sb, "%d. %s\n", i+1, name)
		variants[name] = []string{name}
	}

	ranks := RankEntities(AnalyzeList(sb.String()), variants)
	require.Len(t, ranks, 15)
	for name, rank := range ranks {
		assert.LessOrEqual(t, rank, model.MaxRank, name)
		assert.GreaterOrEqual(t, rank, 1, name)
	}
}
