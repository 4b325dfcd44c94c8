package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/textnorm"
)

// CreateVertical inserts a vertical, or returns the existing one with the
// same name.
func (s *store) CreateVertical(ctx context.Context, name, description string) (*model.Vertical, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO verticals (name, description)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = CASE WHEN excluded.description != '' THEN excluded.description ELSE verticals.description END
	`, name, description)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertical: %w", err)
	}

	return s.GetVerticalByName(ctx, name)
}

// GetVerticalByName retrieves a vertical by its exact name.
func (s *store) GetVerticalByName(ctx context.Context, name string) (*model.Vertical, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	var v model.Vertical
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, description FROM verticals WHERE name = ?
	`, strings.TrimSpace(name)).Scan(&v.ID, &v.Name, &v.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vertical: %w", err)
	}
	return &v, nil
}

// GetVerticalByID retrieves a vertical by ID.
func (s *store) GetVerticalByID(ctx context.Context, id int64) (*model.Vertical, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var v model.Vertical
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, description FROM verticals WHERE id = ?
	`, id).Scan(&v.ID, &v.Name, &v.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vertical: %w", err)
	}
	return &v, nil
}

// ListVerticals returns all verticals ordered by name.
func (s *store) ListVerticals(ctx context.Context) ([]model.Vertical, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `SELECT id, name, description FROM verticals ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list verticals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var verticals []model.Vertical
	for rows.Next() {
		var v model.Vertical
		if err := rows.Scan(&v.ID, &v.Name, &v.Description); err != nil {
			return nil, fmt.Errorf("failed to scan vertical: %w", err)
		}
		verticals = append(verticals, v)
	}
	return verticals, rows.Err()
}

// ResolveVertical maps a local vertical name to its knowledge vertical
// through the alias table. Returns common.ErrNotFound when no alias matches.
func (s *store) ResolveVertical(ctx context.Context, name string) (*model.KnowledgeVertical, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	var kv model.KnowledgeVertical
	err := s.q.QueryRowContext(ctx, `
		SELECT kv.id, kv.name
		FROM vertical_aliases va
		JOIN knowledge_verticals kv ON kv.id = va.vertical_id
		WHERE va.alias_key = ?
	`, textnorm.EntityKey(name)).Scan(&kv.ID, &kv.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vertical: %w", err)
	}
	return &kv, nil
}

// CreateKnowledgeVertical inserts a knowledge vertical and registers its own
// name as its first alias.
func (s *store) CreateKnowledgeVertical(ctx context.Context, name string) (*model.KnowledgeVertical, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO knowledge_verticals (name) VALUES (?)
		ON CONFLICT(name) DO NOTHING
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge vertical: %w", err)
	}

	// Re-read the row so the conflict path and the insert path return the
	// same ID.
	kv := model.KnowledgeVertical{Name: name}
	err = s.q.QueryRowContext(ctx, `SELECT id FROM knowledge_verticals WHERE name = ?`, name).Scan(&kv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge vertical: %w", err)
	}

	if err := s.AddVerticalAlias(ctx, &model.VerticalAlias{
		VerticalID: kv.ID,
		Alias:      name,
		Source:     "self",
	}); err != nil {
		return nil, err
	}
	return &kv, nil
}

// AddVerticalAlias registers an alias for a knowledge vertical. Duplicate
// alias keys are ignored so resolution stays deterministic.
func (s *store) AddVerticalAlias(ctx context.Context, alias *model.VerticalAlias) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if alias == nil {
		return fmt.Errorf("%w: alias", ErrNilParameter)
	}
	if err := validateString(alias.Alias, "alias"); err != nil {
		return err
	}

	key := alias.AliasKey
	if key == "" {
		key = textnorm.EntityKey(alias.Alias)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO vertical_aliases (vertical_id, alias, alias_key, source)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(alias_key) DO NOTHING
	`, alias.VerticalID, strings.TrimSpace(alias.Alias), key, alias.Source)
	if err != nil {
		return fmt.Errorf("failed to add vertical alias: %w", err)
	}
	return nil
}

// ListVerticalAliases returns all aliases pointing at a knowledge vertical.
func (s *store) ListVerticalAliases(ctx context.Context, verticalID int64) ([]model.VerticalAlias, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, vertical_id, alias, alias_key, source
		FROM vertical_aliases WHERE vertical_id = ? ORDER BY alias
	`, verticalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vertical aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var aliases []model.VerticalAlias
	for rows.Next() {
		var a model.VerticalAlias
		if err := rows.Scan(&a.ID, &a.VerticalID, &a.Alias, &a.AliasKey, &a.Source); err != nil {
			return nil, fmt.Errorf("failed to scan vertical alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}
