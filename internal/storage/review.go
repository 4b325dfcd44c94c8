package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/textnorm"
)

// CreateValidationCandidate queues a low-mention entity for human review.
func (s *store) CreateValidationCandidate(ctx context.Context, candidate *model.ValidationCandidate) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if candidate == nil {
		return fmt.Errorf("%w: candidate", ErrNilParameter)
	}
	if err := validateString(candidate.Name, "candidate.Name"); err != nil {
		return err
	}
	if err := validateEntityType(candidate.Type); err != nil {
		return err
	}

	if candidate.Status == "" {
		candidate.Status = model.ValidationPending
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO validation_candidates (vertical_id, entity_type, name, mention_count, status)
		VALUES (?, ?, ?, ?, ?)
	`, candidate.VerticalID, candidate.Type, strings.TrimSpace(candidate.Name),
		candidate.MentionCount, candidate.Status)
	if err != nil {
		return fmt.Errorf("failed to create validation candidate: %w", err)
	}
	return nil
}

// ListValidationCandidates returns review candidates in a given state.
func (s *store) ListValidationCandidates(ctx context.Context, verticalID int64, status model.ValidationStatus) ([]model.ValidationCandidate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, vertical_id, entity_type, name, mention_count, status,
			reviewed_by, rejection_reason, reviewed_at
		FROM validation_candidates
		WHERE vertical_id = ? AND status = ?
		ORDER BY mention_count DESC, name
	`, verticalID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list validation candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []model.ValidationCandidate
	for rows.Next() {
		var c model.ValidationCandidate
		var reviewedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.VerticalID, &c.Type, &c.Name, &c.MentionCount,
			&c.Status, &c.ReviewedBy, &c.RejectionReason, &reviewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan validation candidate: %w", err)
		}
		if reviewedAt.Valid {
			c.ReviewedAt = &reviewedAt.Time
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ResolveValidationCandidate moves a candidate to a terminal state. Already
// resolved candidates are left untouched.
func (s *store) ResolveValidationCandidate(ctx context.Context, id int64, status model.ValidationStatus, reviewedBy, reason string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if status != model.ValidationValidated && status != model.ValidationRejected {
		return fmt.Errorf("%w: resolution status must be terminal, got %s", ErrInvalidType, status)
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE validation_candidates
		SET status = ?, reviewed_by = ?, rejection_reason = ?, reviewed_at = ?
		WHERE id = ? AND status = 'PENDING'
	`, status, reviewedBy, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve validation candidate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// AddRejectedEntity records a name the pipeline must suppress. Repeated
// rejections of the same (name, reason) pair are no-ops.
func (s *store) AddRejectedEntity(ctx context.Context, rejected *model.RejectedEntity) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rejected == nil {
		return fmt.Errorf("%w: rejected", ErrNilParameter)
	}
	if err := validateString(rejected.Name, "rejected.Name"); err != nil {
		return err
	}
	if err := validateEntityType(rejected.Type); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO rejected_entities (vertical_id, entity_type, name, reason, example_context)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(vertical_id, entity_type, name, reason) DO NOTHING
	`, rejected.VerticalID, rejected.Type, strings.TrimSpace(rejected.Name),
		rejected.Reason, rejected.ExampleContext)
	if err != nil {
		return fmt.Errorf("failed to add rejected entity: %w", err)
	}
	return nil
}

// IsRejected reports whether a name is on the vertical's rejection list.
// Comparison uses the normalized name key.
func (s *store) IsRejected(ctx context.Context, verticalID int64, entityType model.EntityType, name string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(name, "name"); err != nil {
		return false, err
	}

	rejected, err := s.ListRejectedEntities(ctx, verticalID, entityType)
	if err != nil {
		return false, err
	}
	key := textnorm.EntityKey(name)
	for _, r := range rejected {
		if textnorm.EntityKey(r.Name) == key {
			return true, nil
		}
	}
	return false, nil
}

// ListRejectedEntities returns a vertical's rejection list for one type.
func (s *store) ListRejectedEntities(ctx context.Context, verticalID int64, entityType model.EntityType) ([]model.RejectedEntity, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateEntityType(entityType); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, vertical_id, entity_type, name, reason, example_context, created_at
		FROM rejected_entities
		WHERE vertical_id = ? AND entity_type = ?
		ORDER BY name
	`, verticalID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejected entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rejected []model.RejectedEntity
	for rows.Next() {
		var r model.RejectedEntity
		if err := rows.Scan(&r.ID, &r.VerticalID, &r.Type, &r.Name, &r.Reason,
			&r.ExampleContext, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rejected entity: %w", err)
		}
		rejected = append(rejected, r)
	}
	return rejected, rows.Err()
}
