package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/service"
	"github.com/koehnden/dragon-lens/internal/textnorm"
)

// Confidence recorded for mappings asserted directly by a reviewer.
const feedbackMappingConfidence = 1.0

// Processor applies feedback submissions atomically.
type Processor struct {
	storage service.Storage
}

// NewProcessor creates a feedback processor.
func NewProcessor(storage service.Storage) *Processor {
	return &Processor{storage: storage}
}

// Submit validates and applies one feedback payload. Validation failures
// reject the whole submission before any write. After validation each item
// is applied independently: a bad item becomes a warning in the result and
// never blocks the rest. The submission, including its raw payload, is
// archived as an immutable event.
func (p *Processor) Submit(ctx context.Context, payload *model.FeedbackPayload, reviewer, reviewerModel string) (*model.FeedbackResult, error) {
	run, err := validatePayload(ctx, p.storage, payload)
	if err != nil {
		return nil, err
	}

	tx, err := p.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning feedback transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	kv, err := resolveCanonicalVertical(ctx, tx, run, &payload.CanonicalVertical)
	if err != nil {
		return nil, err
	}

	result := &model.FeedbackResult{
		RunID:               run.ID,
		CanonicalVerticalID: kv.ID,
	}

	for i, item := range payload.Brands {
		if err := applyEntityItem(ctx, tx, kv.ID, model.EntityTypeBrand, item); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("brands[%d] %s %q: %v", i, item.Action, itemName(item), err))
			continue
		}
		result.Applied.Brands++
	}
	for i, item := range payload.Products {
		if err := applyEntityItem(ctx, tx, kv.ID, model.EntityTypeProduct, item); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("products[%d] %s %q: %v", i, item.Action, itemName(item), err))
			continue
		}
		result.Applied.Products++
	}
	for i, item := range payload.Mappings {
		if err := applyMappingItem(ctx, tx, kv.ID, item); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("mappings[%d] %s %q->%q: %v", i, item.Action, item.ProductName, item.BrandName, err))
			continue
		}
		result.Applied.Mappings++
	}
	for i, item := range payload.Translations {
		err := tx.UpsertTranslationOverride(ctx, &model.TranslationOverride{
			VerticalID:    kv.ID,
			Type:          item.Type,
			CanonicalName: item.CanonicalName,
			Language:      item.Language,
			OverrideText:  item.OverrideText,
			Reason:        item.Reason,
		})
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("translations[%d] %q: %v", i, item.CanonicalName, err))
			continue
		}
		result.Applied.Translations++
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("archiving feedback payload: %w", err)
	}
	event := &model.FeedbackEvent{
		RunID:         run.ID,
		VerticalID:    kv.ID,
		Reviewer:      reviewer,
		ReviewerModel: reviewerModel,
		Payload:       string(raw),
	}
	if err := tx.SaveFeedbackEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("archiving feedback event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing feedback: %w", err)
	}
	return result, nil
}

// resolveCanonicalVertical finds or creates the canonical vertical and
// records the run's local vertical name as one of its aliases.
func resolveCanonicalVertical(ctx context.Context, store service.Store, run *model.Run, ref *model.CanonicalVerticalRef) (*model.KnowledgeVertical, error) {
	var kv *model.KnowledgeVertical
	var err error

	switch {
	case ref.ID != 0:
		aliases, aliasErr := store.ListVerticalAliases(ctx, ref.ID)
		if aliasErr != nil {
			return nil, aliasErr
		}
		if len(aliases) == 0 {
			return nil, common.NewUserError(
				fmt.Sprintf("canonical vertical %d does not exist", ref.ID), common.ErrNotFound)
		}
		kv = &model.KnowledgeVertical{ID: ref.ID, Name: ref.Name}
	default:
		kv, err = store.ResolveVertical(ctx, ref.Name)
		if errors.Is(err, common.ErrNotFound) {
			kv, err = store.CreateKnowledgeVertical(ctx, ref.Name)
		}
		if err != nil {
			return nil, err
		}
	}

	local, err := store.GetVerticalByID(ctx, run.VerticalID)
	if err != nil {
		return nil, err
	}
	err = store.AddVerticalAlias(ctx, &model.VerticalAlias{
		VerticalID: kv.ID,
		Alias:      local.Name,
		AliasKey:   textnorm.EntityKey(local.Name),
		Source:     "feedback",
	})
	if err != nil {
		return nil, err
	}
	return kv, nil
}

func applyEntityItem(ctx context.Context, store service.Store, verticalID int64, entityType model.EntityType, item model.EntityFeedback) error {
	switch item.Action {
	case model.FeedbackValidate:
		entity, err := findOrCreateEntity(ctx, store, verticalID, entityType, item.Name)
		if err != nil {
			return err
		}
		return store.SetValidated(ctx, entity.ID, model.ValidationFeedback)

	case model.FeedbackReject:
		reason := item.Reason
		if reason == "" {
			reason = "user_reject"
		}
		err := store.AddRejectedEntity(ctx, &model.RejectedEntity{
			VerticalID: verticalID,
			Type:       entityType,
			Name:       item.Name,
			Reason:     reason,
		})
		if err != nil {
			return err
		}
		entity, err := store.FindCanonicalEntity(ctx, verticalID, entityType, item.Name)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return store.DeleteCanonicalEntity(ctx, entity.ID)

	case model.FeedbackReplace:
		return applyReplace(ctx, store, verticalID, entityType, item)
	}
	return fmt.Errorf("%w: unknown action %q", common.ErrInvalidConfig, item.Action)
}

// applyReplace handles the two distinct meanings of a replacement. When the
// wrong name is a surface variant of the correct one (suffix or punctuation
// noise) it becomes an alias, so future runs fold it into the canonical
// entity. Otherwise the wrong name was a genuine misextraction: it joins the
// rejected set and its canonical record, if one exists, is removed.
func applyReplace(ctx context.Context, store service.Store, verticalID int64, entityType model.EntityType, item model.EntityFeedback) error {
	correct, err := findOrCreateEntity(ctx, store, verticalID, entityType, item.CorrectName)
	if err != nil {
		return err
	}
	if err := store.SetValidated(ctx, correct.ID, model.ValidationFeedback); err != nil {
		return err
	}

	isVariant := textnorm.EntityKey(item.WrongName) == textnorm.EntityKey(item.CorrectName) ||
		textnorm.SameBrand(item.WrongName, item.CorrectName)

	wrong, err := store.FindCanonicalEntity(ctx, verticalID, entityType, item.WrongName)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	wrongExists := err == nil

	if isVariant {
		if wrongExists && wrong.ID != correct.ID {
			if wrong.MentionCount > 0 {
				if err := store.IncrementMentionCount(ctx, correct.ID, wrong.MentionCount); err != nil {
					return err
				}
			}
			if err := store.DeleteCanonicalEntity(ctx, wrong.ID); err != nil {
				return err
			}
		}
		return store.AddAlias(ctx, &model.Alias{CanonicalID: correct.ID, Alias: item.WrongName})
	}

	reason := item.Reason
	if reason == "" {
		reason = fmt.Sprintf("replaced by %s", item.CorrectName)
	}
	err = store.AddRejectedEntity(ctx, &model.RejectedEntity{
		VerticalID: verticalID,
		Type:       entityType,
		Name:       item.WrongName,
		Reason:     reason,
	})
	if err != nil {
		return err
	}
	if wrongExists && wrong.ID != correct.ID {
		return store.DeleteCanonicalEntity(ctx, wrong.ID)
	}
	return nil
}

func applyMappingItem(ctx context.Context, store service.Store, verticalID int64, item model.MappingFeedbackItem) error {
	product, err := findOrCreateEntity(ctx, store, verticalID, model.EntityTypeProduct, item.ProductName)
	if err != nil {
		return err
	}
	brand, err := findOrCreateEntity(ctx, store, verticalID, model.EntityTypeBrand, item.BrandName)
	if err != nil {
		return err
	}

	switch item.Action {
	case model.MappingActionAdd, model.MappingActionValidate:
		_, err = store.UpsertMapping(ctx, &model.ProductBrandMapping{
			VerticalID:  verticalID,
			ProductID:   product.ID,
			BrandID:     brand.ID,
			Confidence:  feedbackMappingConfidence,
			Source:      model.MappingFeedback,
			IsValidated: true,
		})
		return err

	case model.MappingActionReject:
		existing, err := store.GetMapping(ctx, verticalID, product.ID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		if err == nil && existing.BrandID != brand.ID {
			return fmt.Errorf("stored mapping points at brand %d, not %q", existing.BrandID, item.BrandName)
		}
		// The rejection tombstone blocks automation from re-learning the
		// same wrong pairing.
		_, err = store.UpsertMapping(ctx, &model.ProductBrandMapping{
			VerticalID:  verticalID,
			ProductID:   product.ID,
			BrandID:     brand.ID,
			Confidence:  0,
			Source:      model.MappingReject,
			IsValidated: false,
		})
		return err
	}
	return fmt.Errorf("%w: unknown mapping action %q", common.ErrInvalidConfig, item.Action)
}

func findOrCreateEntity(ctx context.Context, store service.Store, verticalID int64, entityType model.EntityType, name string) (*model.CanonicalEntity, error) {
	entity, err := store.FindCanonicalEntity(ctx, verticalID, entityType, name)
	if err == nil {
		return entity, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	id, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID:    verticalID,
		Type:          entityType,
		CanonicalName: name,
	})
	if err != nil {
		return nil, err
	}
	return store.GetCanonicalEntity(ctx, id)
}

func itemName(item model.EntityFeedback) string {
	if item.Action == model.FeedbackReplace {
		return item.WrongName
	}
	return item.Name
}
