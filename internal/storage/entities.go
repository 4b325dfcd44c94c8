package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/textnorm"
)

const entityColumns = `id, vertical_id, entity_type, canonical_name, display_name,
	mention_count, is_validated, validation_source, created_at, updated_at`

func scanEntity(row interface{ Scan(...any) error }) (*model.CanonicalEntity, error) {
	var e model.CanonicalEntity
	err := row.Scan(&e.ID, &e.VerticalID, &e.Type, &e.CanonicalName, &e.DisplayName,
		&e.MentionCount, &e.IsValidated, &e.ValidationSource, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateCanonicalEntity inserts a canonical entity and returns its ID. When
// an entity with the same name key already exists its ID is returned and the
// mention count is bumped instead.
func (s *store) CreateCanonicalEntity(ctx context.Context, entity *model.CanonicalEntity) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateEntity(entity); err != nil {
		return 0, err
	}

	name := strings.TrimSpace(entity.CanonicalName)
	display := entity.DisplayName
	if display == "" {
		display = name
	}
	now := time.Now().UTC()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO canonical_entities
			(vertical_id, entity_type, canonical_name, display_name, name_key,
			 mention_count, is_validated, validation_source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vertical_id, entity_type, name_key) DO UPDATE SET
			mention_count = canonical_entities.mention_count + excluded.mention_count,
			updated_at = excluded.updated_at
	`, entity.VerticalID, entity.Type, name, display, textnorm.EntityKey(name),
		entity.MentionCount, entity.IsValidated, entity.ValidationSource, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create canonical entity: %w", err)
	}

	var id int64
	err = s.q.QueryRowContext(ctx, `
		SELECT id FROM canonical_entities
		WHERE vertical_id = ? AND entity_type = ? AND name_key = ?
	`, entity.VerticalID, entity.Type, textnorm.EntityKey(name)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read canonical entity: %w", err)
	}
	entity.ID = id
	return id, nil
}

// GetCanonicalEntity retrieves a canonical entity by ID.
func (s *store) GetCanonicalEntity(ctx context.Context, id int64) (*model.CanonicalEntity, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	entity, err := scanEntity(s.q.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM canonical_entities WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get canonical entity: %w", err)
	}
	return entity, nil
}

// FindCanonicalEntity resolves a surface name to a canonical entity by name
// key, matching the canonical name first and aliases second.
func (s *store) FindCanonicalEntity(ctx context.Context, verticalID int64, entityType model.EntityType, name string) (*model.CanonicalEntity, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}
	if err := validateEntityType(entityType); err != nil {
		return nil, err
	}

	key := textnorm.EntityKey(name)
	entity, err := scanEntity(s.q.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM canonical_entities
		WHERE vertical_id = ? AND entity_type = ? AND name_key = ?
	`, verticalID, entityType, key))
	if err == nil {
		return entity, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to find canonical entity: %w", err)
	}

	entity, err = scanEntity(s.q.QueryRowContext(ctx, `
		SELECT `+qualify(entityColumns, "ce")+`
		FROM entity_aliases ea
		JOIN canonical_entities ce ON ce.id = ea.canonical_id
		WHERE ce.vertical_id = ? AND ce.entity_type = ? AND ea.alias_key = ?
	`, verticalID, entityType, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find canonical entity by alias: %w", err)
	}
	return entity, nil
}

// qualify prefixes every column in a comma-separated list with a table alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// ListCanonicalEntities returns a vertical's entities of one type, most
// mentioned first.
func (s *store) ListCanonicalEntities(ctx context.Context, verticalID int64, entityType model.EntityType) ([]model.CanonicalEntity, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateEntityType(entityType); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM canonical_entities
		WHERE vertical_id = ? AND entity_type = ?
		ORDER BY mention_count DESC, canonical_name
	`, verticalID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list canonical entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []model.CanonicalEntity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan canonical entity: %w", err)
		}
		entities = append(entities, *entity)
	}
	return entities, rows.Err()
}

// UpdateCanonicalName renames a canonical entity, refreshing its name key.
func (s *store) UpdateCanonicalName(ctx context.Context, id int64, canonicalName, displayName string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(canonicalName, "canonicalName"); err != nil {
		return err
	}

	if displayName == "" {
		displayName = canonicalName
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE canonical_entities
		SET canonical_name = ?, display_name = ?, name_key = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, strings.TrimSpace(canonicalName), displayName, textnorm.EntityKey(canonicalName), id)
	if err != nil {
		return fmt.Errorf("failed to update canonical name: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// IncrementMentionCount adds delta to an entity's cross-run mention count.
func (s *store) IncrementMentionCount(ctx context.Context, id int64, delta int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE canonical_entities
		SET mention_count = mention_count + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, delta, id)
	if err != nil {
		return fmt.Errorf("failed to increment mention count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// SetValidated marks an entity validated. Feedback validation is never
// downgraded back to auto.
func (s *store) SetValidated(ctx context.Context, id int64, source model.ValidationSource) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE canonical_entities
		SET is_validated = 1,
			validation_source = CASE WHEN validation_source = 'feedback' THEN validation_source ELSE ? END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, source, id)
	if err != nil {
		return fmt.Errorf("failed to validate entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// DeleteCanonicalEntity removes an entity along with its aliases, mentions,
// and mappings.
func (s *store) DeleteCanonicalEntity(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	cleanups := []string{
		`DELETE FROM entity_aliases WHERE canonical_id = ?`,
		`DELETE FROM mentions WHERE entity_id = ?`,
		`DELETE FROM product_brand_mappings WHERE product_id = ? OR brand_id = ?`,
	}
	for _, q := range cleanups {
		args := []any{id}
		if strings.Count(q, "?") == 2 {
			args = append(args, id)
		}
		if _, err := s.q.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("failed to clean up entity references: %w", err)
		}
	}

	res, err := s.q.ExecContext(ctx, `DELETE FROM canonical_entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete canonical entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// AddAlias attaches a surface form to a canonical entity. Duplicate alias
// keys on the same entity are ignored.
func (s *store) AddAlias(ctx context.Context, alias *model.Alias) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if alias == nil {
		return fmt.Errorf("%w: alias", ErrNilParameter)
	}
	if err := validateString(alias.Alias, "alias"); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO entity_aliases (canonical_id, alias, alias_key)
		VALUES (?, ?, ?)
		ON CONFLICT(canonical_id, alias_key) DO NOTHING
	`, alias.CanonicalID, strings.TrimSpace(alias.Alias), textnorm.EntityKey(alias.Alias))
	if err != nil {
		return fmt.Errorf("failed to add alias: %w", err)
	}
	return nil
}

// ListAliases returns all aliases of a canonical entity.
func (s *store) ListAliases(ctx context.Context, canonicalID int64) ([]model.Alias, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, canonical_id, alias FROM entity_aliases
		WHERE canonical_id = ? ORDER BY alias
	`, canonicalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var aliases []model.Alias
	for rows.Next() {
		var a model.Alias
		if err := rows.Scan(&a.ID, &a.CanonicalID, &a.Alias); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}
