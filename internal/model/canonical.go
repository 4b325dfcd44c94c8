package model

import "time"

// ValidationSource records how a canonical entity became validated.
type ValidationSource string

// Validation source constants. Empty string means not validated.
const (
	ValidationAuto     ValidationSource = "auto"
	ValidationFeedback ValidationSource = "feedback"
)

// CanonicalEntity is the deduplicated, authoritative brand or product record
// for a vertical. Unique on (VerticalID, Type, CanonicalName) case-insensitively.
type CanonicalEntity struct {
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CanonicalName    string
	DisplayName      string
	ValidationSource ValidationSource
	Type             EntityType
	ID               int64
	VerticalID       int64
	MentionCount     int
	IsValidated      bool
}

// Alias is an alternate surface form owned by a canonical entity.
type Alias struct {
	Alias       string
	ID          int64
	CanonicalID int64
}

// ValidationStatus is the review state of a flagged entity.
type ValidationStatus string

// Validation status constants. VALIDATED and REJECTED are terminal.
const (
	ValidationPending   ValidationStatus = "PENDING"
	ValidationValidated ValidationStatus = "VALIDATED"
	ValidationRejected  ValidationStatus = "REJECTED"
)

// ValidationCandidate is an entity whose mention count fell below the
// auto-validate threshold, queued for human review.
type ValidationCandidate struct {
	ReviewedAt      *time.Time
	Name            string
	Status          ValidationStatus
	ReviewedBy      string
	RejectionReason string
	Type            EntityType
	ID              int64
	VerticalID      int64
	MentionCount    int
}

// RejectedEntity is a name the pipeline must not surface again for a
// vertical. The set is idempotent on (vertical, type, name, reason).
type RejectedEntity struct {
	CreatedAt      time.Time
	Name           string
	Reason         string
	ExampleContext string
	Type           EntityType
	ID             int64
	VerticalID     int64
}

// RejectionReasonOffVertical marks brands retracted by the vertical gate.
const RejectionReasonOffVertical = "off_vertical"

// MappingSource records which mechanism produced a product-brand mapping.
type MappingSource string

// Mapping source constants. Feedback always wins over the others.
const (
	MappingProximity MappingSource = "proximity"
	MappingLLM       MappingSource = "llm"
	MappingFeedback  MappingSource = "feedback"
	MappingKnowledge MappingSource = "knowledge_validated"
	MappingReject    MappingSource = "user_reject"
)

// ProductBrandMapping assigns a parent brand to a product within a vertical.
// One mapping per (VerticalID, ProductID).
type ProductBrandMapping struct {
	UpdatedAt   time.Time
	Source      MappingSource
	ID          int64
	VerticalID  int64
	ProductID   int64
	BrandID     int64
	Confidence  float64
	IsValidated bool
}

// TranslationOverride is an authoritative human correction for an entity's
// display translation in one language.
type TranslationOverride struct {
	CanonicalName string
	Language      string
	OverrideText  string
	Reason        string
	Type          EntityType
	ID            int64
	VerticalID    int64
}
