package model

import "time"

// FeedbackAction is the operation a reviewer requests for one entity.
type FeedbackAction string

// Entity feedback actions.
const (
	FeedbackValidate FeedbackAction = "validate"
	FeedbackReplace  FeedbackAction = "replace"
	FeedbackReject   FeedbackAction = "reject"
)

// MappingAction is the operation a reviewer requests for a product-brand pair.
type MappingAction string

// Mapping feedback actions.
const (
	MappingActionAdd      MappingAction = "add"
	MappingActionValidate MappingAction = "validate"
	MappingActionReject   MappingAction = "reject"
)

// CanonicalVerticalRef selects (or creates) the canonical vertical a
// feedback submission targets.
type CanonicalVerticalRef struct {
	Name  string `json:"name,omitempty"`
	ID    int64  `json:"id,omitempty"`
	IsNew bool   `json:"is_new,omitempty"`
}

// EntityFeedback is one brand or product correction.
type EntityFeedback struct {
	Action      FeedbackAction `json:"action"`
	Name        string         `json:"name,omitempty"`
	WrongName   string         `json:"wrong_name,omitempty"`
	CorrectName string         `json:"correct_name,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// MappingFeedbackItem is one product-brand pair correction.
type MappingFeedbackItem struct {
	Action      MappingAction `json:"action"`
	ProductName string        `json:"product_name"`
	BrandName   string        `json:"brand_name"`
}

// TranslationFeedbackItem is one display-translation override.
type TranslationFeedbackItem struct {
	CanonicalName string     `json:"canonical_name"`
	Language      string     `json:"language"`
	OverrideText  string     `json:"override_text"`
	Reason        string     `json:"reason,omitempty"`
	Type          EntityType `json:"type,omitempty"`
}

// FeedbackPayload is a complete human feedback submission for one run.
type FeedbackPayload struct {
	RunID             string                    `json:"run_id"`
	CanonicalVertical CanonicalVerticalRef      `json:"canonical_vertical"`
	Brands            []EntityFeedback          `json:"brands,omitempty"`
	Products          []EntityFeedback          `json:"products,omitempty"`
	Mappings          []MappingFeedbackItem         `json:"mappings,omitempty"`
	Translations      []TranslationFeedbackItem `json:"translations,omitempty"`
	VerticalID        int64                     `json:"vertical_id,omitempty"`
}

// FeedbackApplied counts the mutations a submission produced per category.
type FeedbackApplied struct {
	Brands       int `json:"brands"`
	Products     int `json:"products"`
	Mappings     int `json:"mappings"`
	Translations int `json:"translations"`
}

// FeedbackResult is returned to the submitter.
type FeedbackResult struct {
	Warnings            []string        `json:"warnings,omitempty"`
	Applied             FeedbackApplied `json:"applied"`
	RunID               string          `json:"run_id"`
	CanonicalVerticalID int64           `json:"canonical_vertical_id"`
}

// FeedbackEvent is the immutable audit record of one submission.
type FeedbackEvent struct {
	CreatedAt     time.Time
	RunID         string
	Reviewer      string
	ReviewerModel string
	Payload       string
	ID            int64
	VerticalID    int64
}
