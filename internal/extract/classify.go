package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/textnorm"
)

// Confidence bounds and anchors for the rule classifier.
const (
	MinConfidence = 0.10
	MaxConfidence = 0.95

	knowledgeHitScore   = 0.92
	modelCodeScore      = 0.85
	productSuffixScore  = 0.80
	brandShapeHanScore  = 0.75
	brandShapeWordScore = 0.75
	brandShapeLongHan   = 0.70
	neutralScore        = 0.50
)

// genericTerms are category vocabulary that regularly survives candidate
// generation but never names an entity.
var genericTerms = map[string]struct{}{}

func init() {
	for _, t := range []string{
		// Chinese
		"自主", "产品质量", "品牌", "质量", "性价比", "价格", "配置",
		"空间", "动力", "油耗", "续航", "服务", "技术", "市场", "销量",
		"用户", "体验", "推荐", "选择", "国产", "合资", "车型", "产品",
		"企业", "公司", "行业", "消费者", "性能", "设计", "安全",
		// English
		"quality", "price", "performance", "value", "brand", "brands",
		"model", "models", "vehicle", "vehicles", "product", "products",
		"service", "technology", "design", "safety", "features", "market",
		"company", "choice", "option", "options",
	} {
		genericTerms[textnorm.EntityKey(t)] = struct{}{}
	}
}

// Descriptor patterns: quality adjectives, measurement nouns, stop-word
// shapes. Names matching these are features of entities, not entities.
var descriptorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:很|非常|比较|十分|最|更)`),
	regexp.MustCompile(`(?:性|度|感|率|量)$`),
	regexp.MustCompile(`^(?:高|低|大|小|好|差)\p{Han}{1,2}$`),
	regexp.MustCompile(`(?i)^(?:excellent|good|great|best|better|reliable|affordable|cheap|expensive|high|low|new|top)$`),
}

// clauseSeparators inside a name mean the candidate spans a sentence
// boundary and cannot be an entity.
const clauseSeparators = ",;:.!?，。；：！？"

var productSuffixPattern = regexp.MustCompile(`(?:PLUS|Plus|Pro|PRO|Max|MAX|Ultra|GT|DM-i|DMi|EV)$`)

// Classifier assigns per-role confidence scores to candidates and applies
// the rule-based rejections.
type Classifier struct {
	knowledge *model.AugmentationContext
}

// NewClassifier creates a classifier. knowledge may be nil when the lookup
// port is unavailable; every knowledge-based rule then simply never fires.
func NewClassifier(knowledge *model.AugmentationContext) *Classifier {
	return &Classifier{knowledge: knowledge}
}

// Classify scores one candidate. The second return value reports whether the
// candidate survives the rule filters at all.
func (c *Classifier) Classify(cand model.EntityCandidate) (model.ScoredCandidate, bool) {
	scored := model.ScoredCandidate{EntityCandidate: cand}

	// Knowledge-validated names are accepted outright. This bypass runs
	// before every rejection rule, including the generic-term list.
	if c.knowledge.InBrandBypass(cand.Name) {
		scored.Type = model.EntityTypeBrand
		scored.BrandScore = knowledgeHitScore
		scored.ProductScore = neutralScore
		scored.Bypass = true
		return scored, true
	}
	if c.knowledge.InProductBypass(cand.Name) {
		scored.Type = model.EntityTypeProduct
		scored.ProductScore = knowledgeHitScore
		scored.BrandScore = neutralScore
		scored.Bypass = true
		return scored, true
	}

	if c.rejected(cand.Name) {
		return scored, false
	}

	scored.BrandScore, scored.ProductScore = c.score(cand.Name)
	if scored.ProductScore > scored.BrandScore {
		scored.Type = model.EntityTypeProduct
	} else {
		scored.Type = model.EntityTypeBrand
	}
	return scored, true
}

// ClassifyAll filters and scores a candidate set, preserving order.
func (c *Classifier) ClassifyAll(candidates []model.EntityCandidate) []model.ScoredCandidate {
	out := make([]model.ScoredCandidate, 0, len(candidates))
	for _, cand := range candidates {
		if scored, ok := c.Classify(cand); ok {
			out = append(out, scored)
		}
	}
	return out
}

func (c *Classifier) rejected(name string) bool {
	if _, generic := genericTerms[textnorm.EntityKey(name)]; generic {
		return true
	}
	if strings.ContainsAny(name, clauseSeparators) {
		return true
	}
	for _, p := range descriptorPatterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// score computes the (brand, product) confidence pair, clamped to the
// documented bounds.
func (c *Classifier) score(name string) (brand, product float64) {
	brand, product = neutralScore, neutralScore

	switch {
	case latinModelCode.MatchString(name) || mixedHanLatin.MatchString(name):
		product = modelCodeScore
	case productSuffixPattern.MatchString(name):
		product = productSuffixScore
	}

	hanCount, latinCount, digitCount := scriptCounts(name)
	switch {
	case hanCount >= 2 && hanCount <= 3 && digitCount == 0 && latinCount == 0:
		brand = brandShapeHanScore
	case hanCount == 4 && digitCount == 0 && latinCount == 0:
		brand = brandShapeLongHan
	case isCapitalizedWord(name) && len(name) >= 4 && digitCount == 0:
		brand = brandShapeWordScore
	}

	return clamp(brand), clamp(product)
}

func clamp(score float64) float64 {
	if score < MinConfidence {
		return MinConfidence
	}
	if score > MaxConfidence {
		return MaxConfidence
	}
	return score
}

func scriptCounts(name string) (han, latin, digit int) {
	for _, r := range name {
		switch {
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.IsLetter(r):
			latin++
		case unicode.IsDigit(r):
			digit++
		}
	}
	return han, latin, digit
}

func isCapitalizedWord(name string) bool {
	runes := []rune(name)
	if len(runes) == 0 || !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if !unicode.IsLetter(r) && r != ' ' && r != '-' {
			return false
		}
	}
	return true
}
