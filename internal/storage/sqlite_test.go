package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err, "failed to create storage")

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func createTestKnowledgeVertical(t *testing.T, s *SQLiteStorage, name string) *model.KnowledgeVertical {
	t.Helper()
	kv, err := s.CreateKnowledgeVertical(context.Background(), name)
	require.NoError(t, err)
	return kv
}

func TestCreateVerticalIsIdempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first, err := store.CreateVertical(ctx, "SUV Cars", "sport utility vehicles")
	require.NoError(t, err)

	second, err := store.CreateVertical(ctx, "SUV Cars", "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "sport utility vehicles", second.Description, "empty description must not clobber")
}

func TestCanonicalEntityFindByNameKeyAndAlias(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	kv := createTestKnowledgeVertical(t, store, "SUV Cars")

	id, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID:    kv.ID,
		Type:          model.EntityTypeBrand,
		CanonicalName: "比亚迪",
		MentionCount:  2,
	})
	require.NoError(t, err)

	require.NoError(t, store.AddAlias(ctx, &model.Alias{CanonicalID: id, Alias: "BYD"}))

	// Same name key resolves directly.
	found, err := store.FindCanonicalEntity(ctx, kv.ID, model.EntityTypeBrand, "比亚迪")
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)

	// Alias resolves too, casefolded.
	found, err = store.FindCanonicalEntity(ctx, kv.ID, model.EntityTypeBrand, "byd")
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)

	// Unknown names return ErrNotFound.
	_, err = store.FindCanonicalEntity(ctx, kv.ID, model.EntityTypeBrand, "Tesla")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreateCanonicalEntityMergesDuplicates(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	kv := createTestKnowledgeVertical(t, store, "SUV Cars")

	first, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID: kv.ID, Type: model.EntityTypeBrand, CanonicalName: "Tesla", MentionCount: 1,
	})
	require.NoError(t, err)

	// Same name key merges instead of duplicating; counts add.
	second, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID: kv.ID, Type: model.EntityTypeBrand, CanonicalName: "TESLA", MentionCount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entity, err := store.GetCanonicalEntity(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 4, entity.MentionCount)
	assert.Equal(t, "Tesla", entity.CanonicalName, "first spelling keeps the stored name")
}

func TestSetValidatedNeverDowngradesFeedback(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	kv := createTestKnowledgeVertical(t, store, "SUV Cars")

	id, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID: kv.ID, Type: model.EntityTypeBrand, CanonicalName: "NIO",
	})
	require.NoError(t, err)

	require.NoError(t, store.SetValidated(ctx, id, model.ValidationFeedback))
	require.NoError(t, store.SetValidated(ctx, id, model.ValidationAuto))

	entity, err := store.GetCanonicalEntity(ctx, id)
	require.NoError(t, err)
	assert.True(t, entity.IsValidated)
	assert.Equal(t, model.ValidationFeedback, entity.ValidationSource)
}

func TestRejectedEntityIdempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	kv := createTestKnowledgeVertical(t, store, "SUV Cars")

	rejected := &model.RejectedEntity{
		VerticalID: kv.ID,
		Type:       model.EntityTypeBrand,
		Name:       "苹果",
		Reason:     model.RejectionReasonOffVertical,
	}
	require.NoError(t, store.AddRejectedEntity(ctx, rejected))
	require.NoError(t, store.AddRejectedEntity(ctx, rejected))

	list, err := store.ListRejectedEntities(ctx, kv.ID, model.EntityTypeBrand)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	hit, err := store.IsRejected(ctx, kv.ID, model.EntityTypeBrand, "苹果")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestUpsertMappingOverwriteRule(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	kv := createTestKnowledgeVertical(t, store, "SUV Cars")

	brandA, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID: kv.ID, Type: model.EntityTypeBrand, CanonicalName: "BYD",
	})
	require.NoError(t, err)
	brandB, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID: kv.ID, Type: model.EntityTypeBrand, CanonicalName: "Geely",
	})
	require.NoError(t, err)
	product, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID: kv.ID, Type: model.EntityTypeProduct, CanonicalName: "汉EV",
	})
	require.NoError(t, err)

	written, err := store.UpsertMapping(ctx, &model.ProductBrandMapping{
		VerticalID: kv.ID, ProductID: product, BrandID: brandA,
		Confidence: 0.8, Source: model.MappingProximity,
	})
	require.NoError(t, err)
	assert.True(t, written)

	// Lower confidence loses.
	written, err = store.UpsertMapping(ctx, &model.ProductBrandMapping{
		VerticalID: kv.ID, ProductID: product, BrandID: brandB,
		Confidence: 0.7, Source: model.MappingLLM,
	})
	require.NoError(t, err)
	assert.False(t, written)

	// Feedback always wins.
	written, err = store.UpsertMapping(ctx, &model.ProductBrandMapping{
		VerticalID: kv.ID, ProductID: product, BrandID: brandB,
		Confidence: 0.7, Source: model.MappingFeedback, IsValidated: true,
	})
	require.NoError(t, err)
	assert.True(t, written)

	// Nothing automated overrides feedback afterwards.
	written, err = store.UpsertMapping(ctx, &model.ProductBrandMapping{
		VerticalID: kv.ID, ProductID: product, BrandID: brandA,
		Confidence: 0.99, Source: model.MappingProximity,
	})
	require.NoError(t, err)
	assert.False(t, written)

	stored, err := store.GetMapping(ctx, kv.ID, product)
	require.NoError(t, err)
	assert.Equal(t, brandB, stored.BrandID)
	assert.Equal(t, model.MappingFeedback, stored.Source)
}

func TestResolveVerticalThroughAliases(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	kv := createTestKnowledgeVertical(t, store, "SUV Cars")
	require.NoError(t, store.AddVerticalAlias(ctx, &model.VerticalAlias{
		VerticalID: kv.ID, Alias: "SUV汽车", Source: "feedback",
	}))

	resolved, err := store.ResolveVertical(ctx, "SUV汽车")
	require.NoError(t, err)
	assert.Equal(t, kv.ID, resolved.ID)

	// The vertical's own name resolves through the self alias.
	resolved, err = store.ResolveVertical(ctx, "suv cars")
	require.NoError(t, err)
	assert.Equal(t, kv.ID, resolved.ID)

	_, err = store.ResolveVertical(ctx, "smartphones")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRunLifecycleAndExtractionResults(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	vertical, err := store.CreateVertical(ctx, "SUV Cars", "")
	require.NoError(t, err)

	run := &model.Run{ID: "run-1", VerticalID: vertical.ID}
	require.NoError(t, store.CreateRun(ctx, run))
	require.NoError(t, store.UpdateRunStatus(ctx, run.ID, model.RunRunning))

	answer := &model.Answer{ID: "ans-1", RunID: run.ID, Text: "推荐比亚迪宋PLUS", Model: "qwen"}
	require.NoError(t, store.SaveAnswer(ctx, answer))

	require.NoError(t, store.SaveExtractionResult(ctx, answer.ID, &model.ExtractionResult{
		Brands:   map[string][]string{"比亚迪": {"比亚迪"}},
		Products: map[string][]string{"宋PLUS": {"宋PLUS"}},
		Debug:    &model.ExtractionDebug{FinalBrands: []string{"比亚迪"}},
	}))

	require.NoError(t, store.UpdateRunStatus(ctx, run.ID, model.RunCompleted))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	entities, err := store.GetRunEntities(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, []string{"比亚迪"}, entities[0].RawBrands)
	assert.Equal(t, []string{"宋PLUS"}, entities[0].RawProducts)
}

func TestTransactionRollback(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	kv := createTestKnowledgeVertical(t, store, "SUV Cars")

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)

	_, err = tx.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID: kv.ID, Type: model.EntityTypeBrand, CanonicalName: "Tesla",
	})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = store.FindCanonicalEntity(ctx, kv.ID, model.EntityTypeBrand, "Tesla")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
