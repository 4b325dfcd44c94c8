// Package storage provides the data persistence layer for the dragon-lens application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/koehnden/dragon-lens/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidEntity  = errors.New("invalid canonical entity")
	ErrInvalidMapping = errors.New("invalid product-brand mapping")
	ErrInvalidRun     = errors.New("invalid run")
	ErrInvalidType    = errors.New("invalid entity type")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateEntityType ensures an entity type is brand or product. Unknown is
// only a transient classifier state and must never reach storage.
func validateEntityType(t model.EntityType) error {
	switch t {
	case model.EntityTypeBrand, model.EntityTypeProduct:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidType, t)
	}
}

// validateEntity validates a canonical entity before insertion.
func validateEntity(entity *model.CanonicalEntity) error {
	if entity == nil {
		return fmt.Errorf("%w: entity", ErrNilParameter)
	}
	if strings.TrimSpace(entity.CanonicalName) == "" {
		return fmt.Errorf("%w: missing canonical name", ErrInvalidEntity)
	}
	if entity.VerticalID == 0 {
		return fmt.Errorf("%w: missing vertical", ErrInvalidEntity)
	}
	return validateEntityType(entity.Type)
}

// validateMapping validates a product-brand mapping before upsert.
func validateMapping(mapping *model.ProductBrandMapping) error {
	if mapping == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}
	if mapping.ProductID == 0 || mapping.BrandID == 0 {
		return fmt.Errorf("%w: missing product or brand", ErrInvalidMapping)
	}
	if mapping.Confidence < 0 || mapping.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidMapping)
	}
	return nil
}

// validateRun validates a run before insertion.
func validateRun(run *model.Run) error {
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}
	if run.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidRun)
	}
	if run.VerticalID == 0 {
		return fmt.Errorf("%w: missing vertical", ErrInvalidRun)
	}
	return nil
}
