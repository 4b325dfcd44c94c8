package model

// KnowledgeVertical is the cross-run identity that local vertical names
// resolve to through the alias table.
type KnowledgeVertical struct {
	Name string
	ID   int64
}

// VerticalAlias maps one local vertical name onto a canonical vertical.
// AliasKey is the normalized comparison form of Alias.
type VerticalAlias struct {
	Alias      string
	AliasKey   string
	Source     string
	ID         int64
	VerticalID int64
}

// PromptExample is a validated entity rendered for prompt augmentation.
type PromptExample struct {
	CanonicalName string
	DisplayName   string
	Aliases       []string
}

// RejectedExample is a rejected name rendered for prompt augmentation.
type RejectedExample struct {
	Name   string
	Reason string
}

// AugmentationContext carries the knowledge the classifier and verifier
// inject into their prompts before a run: positive and negative few-shot
// examples plus the bypass sets.
type AugmentationContext struct {
	ValidatedBrands   []PromptExample
	ValidatedProducts []PromptExample
	RejectedBrands    []RejectedExample
	RejectedProducts  []RejectedExample
	// BrandBypass and ProductBypass hold every validated name and alias,
	// keyed casefolded, for the classifier and list-filter bypass rule.
	BrandBypass   map[string]struct{}
	ProductBypass map[string]struct{}
}

// InBrandBypass reports whether name is a validated brand surface form.
func (c *AugmentationContext) InBrandBypass(name string) bool {
	if c == nil || c.BrandBypass == nil {
		return false
	}
	_, ok := c.BrandBypass[foldKey(name)]
	return ok
}

// InProductBypass reports whether name is a validated product surface form.
func (c *AugmentationContext) InProductBypass(name string) bool {
	if c == nil || c.ProductBypass == nil {
		return false
	}
	_, ok := c.ProductBypass[foldKey(name)]
	return ok
}

// InBypass reports whether name is validated under either role.
func (c *AugmentationContext) InBypass(name string) bool {
	return c.InBrandBypass(name) || c.InProductBypass(name)
}
