package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/koehnden/dragon-lens/internal/model"
)

// SaveFeedbackEvent archives one feedback submission. Events are append-only.
func (s *store) SaveFeedbackEvent(ctx context.Context, event *model.FeedbackEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if event == nil {
		return fmt.Errorf("%w: event", ErrNilParameter)
	}
	if err := validateString(event.RunID, "event.RunID"); err != nil {
		return err
	}
	if err := validateString(event.Payload, "event.Payload"); err != nil {
		return err
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO feedback_events (run_id, vertical_id, reviewer, reviewer_model, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.RunID, event.VerticalID, event.Reviewer, event.ReviewerModel,
		event.Payload, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save feedback event: %w", err)
	}
	return nil
}

// ListFeedbackEvents returns a run's feedback history, oldest first.
func (s *store) ListFeedbackEvents(ctx context.Context, runID string) ([]model.FeedbackEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, run_id, vertical_id, reviewer, reviewer_model, payload, created_at
		FROM feedback_events
		WHERE run_id = ?
		ORDER BY created_at, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.FeedbackEvent
	for rows.Next() {
		var e model.FeedbackEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.VerticalID, &e.Reviewer,
			&e.ReviewerModel, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
