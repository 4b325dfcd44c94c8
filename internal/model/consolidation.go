package model

// MergeCandidate proposes folding one raw name into another.
type MergeCandidate struct {
	SourceName string
	TargetName string
	Type       EntityType
	Similarity float64
}

// ConsolidationResult summarizes one consolidation pass over a run.
type ConsolidationResult struct {
	BrandsMerged             int
	ProductsMerged           int
	BrandsFlagged            int
	ProductsFlagged          int
	CanonicalBrandsCreated   int
	CanonicalProductsCreated int
}

// AnswerEntities is the consolidation engine's view of one answer: its text
// plus the final entity names extraction settled on.
type AnswerEntities struct {
	AnswerID    string
	AnswerText  string
	RawBrands   []string
	RawProducts []string
}

// ConsolidationInput aggregates every answer's final entities for a run.
type ConsolidationInput struct {
	VerticalName        string
	VerticalDescription string
	RunID               string
	Answers             []AnswerEntities
	UniqueBrands        []string
	UniqueProducts      []string
	VerticalID          int64
}
