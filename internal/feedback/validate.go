// Package feedback applies human corrections to the knowledge base: entity
// validation, replacement, rejection, product-brand mappings, and display
// translation overrides.
package feedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/service"
)

// Display translations can only be overridden for English for now.
const supportedOverrideLanguage = "en"

// validatePayload checks a submission before any mutation. Errors here are
// descriptive and synchronous; nothing has been written yet.
func validatePayload(ctx context.Context, store service.Store, payload *model.FeedbackPayload) (*model.Run, error) {
	if payload == nil {
		return nil, common.NewUserError("feedback payload is required", common.ErrInvalidConfig)
	}
	if strings.TrimSpace(payload.RunID) == "" {
		return nil, common.NewUserError("run_id is required", common.ErrInvalidConfig)
	}
	if payload.CanonicalVertical.ID == 0 && strings.TrimSpace(payload.CanonicalVertical.Name) == "" {
		return nil, common.NewUserError("canonical vertical name or id is required", common.ErrInvalidConfig)
	}

	run, err := store.GetRun(ctx, payload.RunID)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("run %s not found", payload.RunID), err)
	}
	if run.Status != model.RunCompleted {
		return nil, common.NewUserError(
			fmt.Sprintf("run %s has status %s, feedback requires a completed run", run.ID, run.Status),
			common.ErrRunNotCompleted)
	}
	if payload.VerticalID != 0 && payload.VerticalID != run.VerticalID {
		return nil, common.NewUserError(
			fmt.Sprintf("payload vertical %d does not match run vertical %d", payload.VerticalID, run.VerticalID),
			common.ErrVerticalMismatch)
	}

	for i, item := range payload.Brands {
		if err := validateEntityItem(item); err != nil {
			return nil, common.NewUserError(fmt.Sprintf("brands[%d]", i), err)
		}
	}
	for i, item := range payload.Products {
		if err := validateEntityItem(item); err != nil {
			return nil, common.NewUserError(fmt.Sprintf("products[%d]", i), err)
		}
	}
	for i, item := range payload.Mappings {
		if err := validateMappingItem(item); err != nil {
			return nil, common.NewUserError(fmt.Sprintf("mappings[%d]", i), err)
		}
	}
	for i, item := range payload.Translations {
		if err := validateTranslationItem(item); err != nil {
			return nil, common.NewUserError(fmt.Sprintf("translations[%d]", i), err)
		}
	}
	return run, nil
}

func validateEntityItem(item model.EntityFeedback) error {
	switch item.Action {
	case model.FeedbackValidate, model.FeedbackReject:
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("%w: name is required for %s", common.ErrInvalidConfig, item.Action)
		}
	case model.FeedbackReplace:
		if strings.TrimSpace(item.WrongName) == "" || strings.TrimSpace(item.CorrectName) == "" {
			return fmt.Errorf("%w: replace requires wrong_name and correct_name", common.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", common.ErrInvalidConfig, item.Action)
	}
	return nil
}

func validateMappingItem(item model.MappingFeedbackItem) error {
	switch item.Action {
	case model.MappingActionAdd, model.MappingActionValidate, model.MappingActionReject:
	default:
		return fmt.Errorf("%w: unknown mapping action %q", common.ErrInvalidConfig, item.Action)
	}
	if strings.TrimSpace(item.ProductName) == "" || strings.TrimSpace(item.BrandName) == "" {
		return fmt.Errorf("%w: mapping requires product_name and brand_name", common.ErrInvalidConfig)
	}
	return nil
}

func validateTranslationItem(item model.TranslationFeedbackItem) error {
	if strings.TrimSpace(item.CanonicalName) == "" || strings.TrimSpace(item.OverrideText) == "" {
		return fmt.Errorf("%w: translation requires canonical_name and override_text", common.ErrInvalidConfig)
	}
	if !strings.EqualFold(item.Language, supportedOverrideLanguage) {
		return fmt.Errorf("%w: only %q translation overrides are supported, got %q",
			common.ErrInvalidConfig, supportedOverrideLanguage, item.Language)
	}
	return nil
}
