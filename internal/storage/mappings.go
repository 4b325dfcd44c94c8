package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/model"
)

// UpsertMapping writes a product-brand mapping, honoring the overwrite rule:
// an existing mapping is replaced only when the new confidence is at least
// the stored one, or the new source is user driven (feedback or a user
// rejection). Returns whether a write happened.
func (s *store) UpsertMapping(ctx context.Context, mapping *model.ProductBrandMapping) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateMapping(mapping); err != nil {
		return false, err
	}

	existing, err := s.GetMapping(ctx, mapping.VerticalID, mapping.ProductID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return false, err
	}
	userDriven := mapping.Source == model.MappingFeedback || mapping.Source == model.MappingReject
	if existing != nil && !userDriven {
		if mapping.Confidence < existing.Confidence {
			return false, nil
		}
		// Feedback mappings are authoritative until feedback replaces them.
		if existing.Source == model.MappingFeedback || existing.Source == model.MappingReject {
			return false, nil
		}
	}

	mapping.UpdatedAt = time.Now().UTC()
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO product_brand_mappings
			(vertical_id, product_id, brand_id, confidence, source, is_validated, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vertical_id, product_id) DO UPDATE SET
			brand_id = excluded.brand_id,
			confidence = excluded.confidence,
			source = excluded.source,
			is_validated = excluded.is_validated,
			updated_at = excluded.updated_at
	`, mapping.VerticalID, mapping.ProductID, mapping.BrandID, mapping.Confidence,
		mapping.Source, mapping.IsValidated, mapping.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return true, nil
}

// GetMapping retrieves the mapping for one product in a vertical.
func (s *store) GetMapping(ctx context.Context, verticalID, productID int64) (*model.ProductBrandMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var m model.ProductBrandMapping
	err := s.q.QueryRowContext(ctx, `
		SELECT id, vertical_id, product_id, brand_id, confidence, source, is_validated, updated_at
		FROM product_brand_mappings
		WHERE vertical_id = ? AND product_id = ?
	`, verticalID, productID).Scan(&m.ID, &m.VerticalID, &m.ProductID, &m.BrandID,
		&m.Confidence, &m.Source, &m.IsValidated, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return &m, nil
}

// ListMappings returns every product-brand mapping in a vertical.
func (s *store) ListMappings(ctx context.Context, verticalID int64) ([]model.ProductBrandMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, vertical_id, product_id, brand_id, confidence, source, is_validated, updated_at
		FROM product_brand_mappings
		WHERE vertical_id = ?
		ORDER BY product_id
	`, verticalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []model.ProductBrandMapping
	for rows.Next() {
		var m model.ProductBrandMapping
		if err := rows.Scan(&m.ID, &m.VerticalID, &m.ProductID, &m.BrandID,
			&m.Confidence, &m.Source, &m.IsValidated, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// UpsertTranslationOverride stores an authoritative display translation.
func (s *store) UpsertTranslationOverride(ctx context.Context, override *model.TranslationOverride) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if override == nil {
		return fmt.Errorf("%w: override", ErrNilParameter)
	}
	if err := validateString(override.CanonicalName, "override.CanonicalName"); err != nil {
		return err
	}
	if err := validateString(override.OverrideText, "override.OverrideText"); err != nil {
		return err
	}
	if err := validateEntityType(override.Type); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO translation_overrides
			(vertical_id, entity_type, canonical_name, language, override_text, reason)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(vertical_id, entity_type, canonical_name, language) DO UPDATE SET
			override_text = excluded.override_text,
			reason = excluded.reason
	`, override.VerticalID, override.Type, override.CanonicalName,
		override.Language, override.OverrideText, override.Reason)
	if err != nil {
		return fmt.Errorf("failed to upsert translation override: %w", err)
	}
	return nil
}

// ListTranslationOverrides returns all overrides for a vertical.
func (s *store) ListTranslationOverrides(ctx context.Context, verticalID int64) ([]model.TranslationOverride, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, vertical_id, entity_type, canonical_name, language, override_text, reason
		FROM translation_overrides
		WHERE vertical_id = ?
		ORDER BY canonical_name, language
	`, verticalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list translation overrides: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var overrides []model.TranslationOverride
	for rows.Next() {
		var o model.TranslationOverride
		if err := rows.Scan(&o.ID, &o.VerticalID, &o.Type, &o.CanonicalName,
			&o.Language, &o.OverrideText, &o.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan translation override: %w", err)
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// SaveMentions persists the per-answer mention records produced after
// consolidation.
func (s *store) SaveMentions(ctx context.Context, mentions []model.Mention) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	for i := range mentions {
		m := &mentions[i]
		evidence, err := json.Marshal(m.EvidenceSnippets)
		if err != nil {
			return fmt.Errorf("failed to encode evidence: %w", err)
		}
		if m.Sentiment == "" {
			m.Sentiment = model.SentimentNeutral
		}

		var rank any
		if m.Rank != nil {
			rank = *m.Rank
		}
		_, err = s.q.ExecContext(ctx, `
			INSERT INTO mentions (answer_id, entity_id, entity_type, mentioned, rank, sentiment, evidence)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, m.AnswerID, m.EntityID, m.Type, m.Mentioned, rank, m.Sentiment, string(evidence))
		if err != nil {
			return fmt.Errorf("failed to save mention: %w", err)
		}
	}
	return nil
}

// RetractMentions flips the given entities' mentions in a run to not
// mentioned, clearing rank and resetting sentiment. Used by the vertical gate.
func (s *store) RetractMentions(ctx context.Context, runID string, entityIDs []int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}
	if len(entityIDs) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(entityIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(entityIDs)+2)
	args = append(args, model.SentimentNeutral, runID)
	for _, id := range entityIDs {
		args = append(args, id)
	}

	_, err := s.q.ExecContext(ctx, fmt.Sprintf(`
		UPDATE mentions SET mentioned = 0, rank = NULL, sentiment = ?
		WHERE answer_id IN (SELECT id FROM answers WHERE run_id = ?)
		  AND entity_id IN (%s)
	`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("failed to retract mentions: %w", err)
	}
	return nil
}

// ListMentions returns every mention recorded for a run's answers.
func (s *store) ListMentions(ctx context.Context, runID string) ([]model.Mention, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT m.id, m.answer_id, m.entity_id, m.entity_type, m.mentioned, m.rank, m.sentiment, m.evidence
		FROM mentions m
		JOIN answers a ON a.id = m.answer_id
		WHERE a.run_id = ?
		ORDER BY m.id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mentions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mentions []model.Mention
	for rows.Next() {
		var m model.Mention
		var rank sql.NullInt64
		var evidence string
		if err := rows.Scan(&m.ID, &m.AnswerID, &m.EntityID, &m.Type,
			&m.Mentioned, &rank, &m.Sentiment, &evidence); err != nil {
			return nil, fmt.Errorf("failed to scan mention: %w", err)
		}
		if rank.Valid {
			r := int(rank.Int64)
			m.Rank = &r
		}
		if err := json.Unmarshal([]byte(evidence), &m.EvidenceSnippets); err != nil {
			return nil, fmt.Errorf("failed to decode evidence: %w", err)
		}
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}
