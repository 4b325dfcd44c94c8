package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/model"
)

// CreateRun inserts a new run in PENDING state.
func (s *store) CreateRun(ctx context.Context, run *model.Run) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.RunPending
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO runs (id, vertical_id, status, created_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.VerticalID, run.Status, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *store) GetRun(ctx context.Context, id string) (*model.Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var run model.Run
	var completedAt sql.NullTime
	err := s.q.QueryRowContext(ctx, `
		SELECT id, vertical_id, status, created_at, completed_at
		FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.VerticalID, &run.Status, &run.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}

// UpdateRunStatus transitions a run. COMPLETED and FAILED also stamp
// completed_at.
func (s *store) UpdateRunStatus(ctx context.Context, id string, status model.RunStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	var res sql.Result
	var err error
	switch status {
	case model.RunCompleted, model.RunFailed:
		res, err = s.q.ExecContext(ctx, `
			UPDATE runs SET status = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?
		`, status, id)
	default:
		res, err = s.q.ExecContext(ctx, `UPDATE runs SET status = ? WHERE id = ?`, status, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// SaveAnswer persists one raw answer for a run.
func (s *store) SaveAnswer(ctx context.Context, answer *model.Answer) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if answer == nil {
		return fmt.Errorf("%w: answer", ErrNilParameter)
	}
	if err := validateString(answer.ID, "answer.ID"); err != nil {
		return err
	}
	if err := validateString(answer.RunID, "answer.RunID"); err != nil {
		return err
	}

	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO answers (id, run_id, text, model, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET text = excluded.text, model = excluded.model
	`, answer.ID, answer.RunID, answer.Text, answer.Model, answer.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}

// GetAnswers returns all answers of a run in insertion order.
func (s *store) GetAnswers(ctx context.Context, runID string) ([]model.Answer, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, run_id, text, model, created_at
		FROM answers WHERE run_id = ? ORDER BY created_at, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.RunID, &a.Text, &a.Model, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// SaveExtractionResult persists the per-answer extraction output. The entity
// maps and the stage debug trace are stored as JSON.
func (s *store) SaveExtractionResult(ctx context.Context, answerID string, result *model.ExtractionResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(answerID, "answerID"); err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("%w: result", ErrNilParameter)
	}

	brands, err := json.Marshal(result.Brands)
	if err != nil {
		return fmt.Errorf("failed to encode brands: %w", err)
	}
	products, err := json.Marshal(result.Products)
	if err != nil {
		return fmt.Errorf("failed to encode products: %w", err)
	}
	relationships, err := json.Marshal(result.Relationships)
	if err != nil {
		return fmt.Errorf("failed to encode relationships: %w", err)
	}
	var debug []byte
	if result.Debug != nil {
		if debug, err = json.Marshal(result.Debug); err != nil {
			return fmt.Errorf("failed to encode debug trace: %w", err)
		}
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO extraction_results (answer_id, brands, products, relationships, debug)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(answer_id) DO UPDATE SET
			brands = excluded.brands,
			products = excluded.products,
			relationships = excluded.relationships,
			debug = excluded.debug
	`, answerID, string(brands), string(products), string(relationships), nullableString(debug))
	if err != nil {
		return fmt.Errorf("failed to save extraction result: %w", err)
	}
	return nil
}

// GetRunEntities returns, for every answer in a run, the answer text and the
// final brand and product names extraction settled on.
func (s *store) GetRunEntities(ctx context.Context, runID string) ([]model.AnswerEntities, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT a.id, a.text, er.brands, er.products
		FROM answers a
		JOIN extraction_results er ON er.answer_id = a.id
		WHERE a.run_id = ?
		ORDER BY a.created_at, a.id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []model.AnswerEntities
	for rows.Next() {
		var ae model.AnswerEntities
		var brandsJSON, productsJSON string
		if err := rows.Scan(&ae.AnswerID, &ae.AnswerText, &brandsJSON, &productsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run entities: %w", err)
		}

		var brands, products map[string][]string
		if err := json.Unmarshal([]byte(brandsJSON), &brands); err != nil {
			return nil, fmt.Errorf("failed to decode brands for answer %s: %w", ae.AnswerID, err)
		}
		if err := json.Unmarshal([]byte(productsJSON), &products); err != nil {
			return nil, fmt.Errorf("failed to decode products for answer %s: %w", ae.AnswerID, err)
		}
		for name := range brands {
			ae.RawBrands = append(ae.RawBrands, name)
		}
		for name := range products {
			ae.RawProducts = append(ae.RawProducts, name)
		}
		entities = append(entities, ae)
	}
	return entities, rows.Err()
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
