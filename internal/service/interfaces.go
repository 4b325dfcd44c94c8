// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/koehnden/dragon-lens/internal/model"
)

// Store defines the data operations shared by Storage and Transaction.
type Store interface {
	// Vertical operations
	CreateVertical(ctx context.Context, name, description string) (*model.Vertical, error)
	GetVerticalByName(ctx context.Context, name string) (*model.Vertical, error)
	GetVerticalByID(ctx context.Context, id int64) (*model.Vertical, error)
	ListVerticals(ctx context.Context) ([]model.Vertical, error)

	// Run operations
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, id string, status model.RunStatus) error
	SaveAnswer(ctx context.Context, answer *model.Answer) error
	GetAnswers(ctx context.Context, runID string) ([]model.Answer, error)

	// Extraction results
	SaveExtractionResult(ctx context.Context, answerID string, result *model.ExtractionResult) error
	GetRunEntities(ctx context.Context, runID string) ([]model.AnswerEntities, error)

	// Canonical entity operations
	CreateCanonicalEntity(ctx context.Context, entity *model.CanonicalEntity) (int64, error)
	GetCanonicalEntity(ctx context.Context, id int64) (*model.CanonicalEntity, error)
	FindCanonicalEntity(ctx context.Context, verticalID int64, entityType model.EntityType, name string) (*model.CanonicalEntity, error)
	ListCanonicalEntities(ctx context.Context, verticalID int64, entityType model.EntityType) ([]model.CanonicalEntity, error)
	UpdateCanonicalName(ctx context.Context, id int64, canonicalName, displayName string) error
	IncrementMentionCount(ctx context.Context, id int64, delta int) error
	SetValidated(ctx context.Context, id int64, source model.ValidationSource) error
	DeleteCanonicalEntity(ctx context.Context, id int64) error
	AddAlias(ctx context.Context, alias *model.Alias) error
	ListAliases(ctx context.Context, canonicalID int64) ([]model.Alias, error)

	// Validation review queue
	CreateValidationCandidate(ctx context.Context, candidate *model.ValidationCandidate) error
	ListValidationCandidates(ctx context.Context, verticalID int64, status model.ValidationStatus) ([]model.ValidationCandidate, error)
	ResolveValidationCandidate(ctx context.Context, id int64, status model.ValidationStatus, reviewedBy, reason string) error

	// Rejected entities
	AddRejectedEntity(ctx context.Context, rejected *model.RejectedEntity) error
	IsRejected(ctx context.Context, verticalID int64, entityType model.EntityType, name string) (bool, error)
	ListRejectedEntities(ctx context.Context, verticalID int64, entityType model.EntityType) ([]model.RejectedEntity, error)

	// Product-brand mappings
	UpsertMapping(ctx context.Context, mapping *model.ProductBrandMapping) (bool, error)
	GetMapping(ctx context.Context, verticalID, productID int64) (*model.ProductBrandMapping, error)
	ListMappings(ctx context.Context, verticalID int64) ([]model.ProductBrandMapping, error)

	// Translation overrides
	UpsertTranslationOverride(ctx context.Context, override *model.TranslationOverride) error
	ListTranslationOverrides(ctx context.Context, verticalID int64) ([]model.TranslationOverride, error)

	// Mentions
	SaveMentions(ctx context.Context, mentions []model.Mention) error
	ListMentions(ctx context.Context, runID string) ([]model.Mention, error)
	RetractMentions(ctx context.Context, runID string, entityIDs []int64) error

	// Knowledge vertical resolution
	ResolveVertical(ctx context.Context, name string) (*model.KnowledgeVertical, error)
	CreateKnowledgeVertical(ctx context.Context, name string) (*model.KnowledgeVertical, error)
	AddVerticalAlias(ctx context.Context, alias *model.VerticalAlias) error
	ListVerticalAliases(ctx context.Context, verticalID int64) ([]model.VerticalAlias, error)

	// Feedback audit trail
	SaveFeedbackEvent(ctx context.Context, event *model.FeedbackEvent) error
	ListFeedbackEvents(ctx context.Context, runID string) ([]model.FeedbackEvent, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	Store

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction. All Store operations run
// against the same transaction until Commit or Rollback.
type Transaction interface {
	Store

	Commit() error
	Rollback() error
}

// LLMClient is the minimal completion contract the extraction pipeline needs.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
}

// KnowledgeLookup provides the cross-run context injected into a run before
// extraction starts. Implementations must degrade gracefully: a lookup
// failure returns common.ErrKnowledgeUnavailable, never a panic.
type KnowledgeLookup interface {
	AugmentationContext(ctx context.Context, verticalName string) (*model.AugmentationContext, error)
	ValidatedMapping(ctx context.Context, verticalName, productName string) (brandName string, ok bool, err error)
}
