// Package model defines the core domain models used throughout the application.
package model

// EntityType distinguishes brands from products at every classification boundary.
type EntityType string

// Entity type constants.
const (
	EntityTypeBrand   EntityType = "brand"
	EntityTypeProduct EntityType = "product"
	EntityTypeUnknown EntityType = "unknown"
)

// CandidateSource indicates which generation strategy produced a candidate.
type CandidateSource string

// Candidate source constants.
const (
	SourceSeed      CandidateSource = "seed"
	SourceRegex     CandidateSource = "regex"
	SourceQuoted    CandidateSource = "quoted"
	SourceList      CandidateSource = "list"
	SourceAlias     CandidateSource = "alias"
	SourceKnowledge CandidateSource = "knowledge"
)

// EntityCandidate is an unverified name extracted from one answer.
// Candidates are ephemeral: they exist only between generation and the
// final per-answer result.
type EntityCandidate struct {
	Name   string
	Source CandidateSource
	Type   EntityType
}

// ScoredCandidate carries the rule classifier's per-role confidence for a
// candidate. Scores are always within [0.10, 0.95].
type ScoredCandidate struct {
	EntityCandidate
	BrandScore   float64
	ProductScore float64
	// Bypass marks names found in the knowledge base's validated set;
	// such candidates skip every rejection rule downstream.
	Bypass bool
}

// Score returns the confidence for the candidate's assigned role.
func (c ScoredCandidate) Score() float64 {
	if c.Type == EntityTypeProduct {
		return c.ProductScore
	}
	return c.BrandScore
}
