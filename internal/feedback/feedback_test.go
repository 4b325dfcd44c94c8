package feedback

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(t *testing.T) (*Processor, *storage.SQLiteStorage, *model.Run) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	vertical, err := store.CreateVertical(ctx, "SUV Cars", "")
	require.NoError(t, err)
	run := &model.Run{ID: "run-1", VerticalID: vertical.ID, Status: model.RunCompleted}
	require.NoError(t, store.CreateRun(ctx, run))

	return NewProcessor(store), store, run
}

func basePayload(run *model.Run) *model.FeedbackPayload {
	return &model.FeedbackPayload{
		RunID:             run.ID,
		VerticalID:        run.VerticalID,
		CanonicalVertical: model.CanonicalVerticalRef{Name: "SUV Cars"},
	}
}

func TestSubmitRejectsIncompleteRun(t *testing.T) {
	proc, store, _ := newTestProcessor(t)
	ctx := context.Background()

	run := &model.Run{ID: "run-pending", VerticalID: 1, Status: model.RunRunning}
	require.NoError(t, store.CreateRun(ctx, run))

	_, err := proc.Submit(ctx, basePayload(run), "alice", "")
	require.ErrorIs(t, err, common.ErrRunNotCompleted)
}

func TestSubmitRejectsVerticalMismatch(t *testing.T) {
	proc, _, run := newTestProcessor(t)

	payload := basePayload(run)
	payload.VerticalID = run.VerticalID + 99
	_, err := proc.Submit(context.Background(), payload, "alice", "")
	require.ErrorIs(t, err, common.ErrVerticalMismatch)
}

func TestSubmitValidateBrand(t *testing.T) {
	proc, store, run := newTestProcessor(t)
	ctx := context.Background()

	payload := basePayload(run)
	payload.Brands = []model.EntityFeedback{{Action: model.FeedbackValidate, Name: "比亚迪"}}

	result, err := proc.Submit(ctx, payload, "alice", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied.Brands)
	assert.Empty(t, result.Warnings)

	entity, err := store.FindCanonicalEntity(ctx, result.CanonicalVerticalID, model.EntityTypeBrand, "比亚迪")
	require.NoError(t, err)
	assert.True(t, entity.IsValidated)
	assert.Equal(t, model.ValidationFeedback, entity.ValidationSource)

	events, err := store.ListFeedbackEvents(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].Reviewer)
	assert.Contains(t, events[0].Payload, "比亚迪")
}

func TestSubmitReplaceSuffixVariantBecomesAlias(t *testing.T) {
	proc, store, run := newTestProcessor(t)
	ctx := context.Background()

	payload := basePayload(run)
	payload.CanonicalVertical.IsNew = true
	payload.Brands = []model.EntityFeedback{{
		Action:      model.FeedbackReplace,
		WrongName:   "BYD Auto",
		CorrectName: "BYD",
	}}

	result, err := proc.Submit(ctx, payload, "alice", "")
	require.NoError(t, err)
	require.Empty(t, result.Warnings)

	kvID := result.CanonicalVerticalID
	byd, err := store.FindCanonicalEntity(ctx, kvID, model.EntityTypeBrand, "BYD")
	require.NoError(t, err)
	assert.True(t, byd.IsValidated)

	aliases, err := store.ListAliases(ctx, byd.ID)
	require.NoError(t, err)
	require.Len(t, aliases, 1)
	assert.Equal(t, "BYD Auto", aliases[0].Alias)

	// A surface variant is an alias, never a rejection.
	rejected, err := store.ListRejectedEntities(ctx, kvID, model.EntityTypeBrand)
	require.NoError(t, err)
	assert.Empty(t, rejected)

	// The alias now resolves to the canonical record.
	found, err := store.FindCanonicalEntity(ctx, kvID, model.EntityTypeBrand, "BYD Auto")
	require.NoError(t, err)
	assert.Equal(t, byd.ID, found.ID)
}

func TestSubmitReplaceMisextractionIsRejected(t *testing.T) {
	proc, store, run := newTestProcessor(t)
	ctx := context.Background()

	payload := basePayload(run)
	payload.Brands = []model.EntityFeedback{{
		Action:      model.FeedbackReplace,
		WrongName:   "新能源",
		CorrectName: "比亚迪",
		Reason:      "generic term, not a brand",
	}}

	result, err := proc.Submit(ctx, payload, "alice", "")
	require.NoError(t, err)
	require.Empty(t, result.Warnings)

	rejected, err := store.ListRejectedEntities(ctx, result.CanonicalVerticalID, model.EntityTypeBrand)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "新能源", rejected[0].Name)

	correct, err := store.FindCanonicalEntity(ctx, result.CanonicalVerticalID, model.EntityTypeBrand, "比亚迪")
	require.NoError(t, err)
	assert.True(t, correct.IsValidated)
}

func TestSubmitRejectRemovesCanonicalEntity(t *testing.T) {
	proc, store, run := newTestProcessor(t)
	ctx := context.Background()

	kv, err := store.CreateKnowledgeVertical(ctx, "SUV Cars")
	require.NoError(t, err)
	_, err = store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID: kv.ID, Type: model.EntityTypeProduct, CanonicalName: "产品质量",
	})
	require.NoError(t, err)

	payload := basePayload(run)
	payload.Products = []model.EntityFeedback{{Action: model.FeedbackReject, Name: "产品质量"}}

	result, err := proc.Submit(ctx, payload, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied.Products)

	_, err = store.FindCanonicalEntity(ctx, kv.ID, model.EntityTypeProduct, "产品质量")
	assert.ErrorIs(t, err, common.ErrNotFound)

	rejected, err := store.IsRejected(ctx, kv.ID, model.EntityTypeProduct, "产品质量")
	require.NoError(t, err)
	assert.True(t, rejected)
}

func TestSubmitMappingAddAndReject(t *testing.T) {
	proc, store, run := newTestProcessor(t)
	ctx := context.Background()

	payload := basePayload(run)
	payload.Mappings = []model.MappingFeedbackItem{{
		Action: model.MappingActionAdd, ProductName: "宋PLUS", BrandName: "比亚迪",
	}}
	result, err := proc.Submit(ctx, payload, "alice", "")
	require.NoError(t, err)
	require.Empty(t, result.Warnings)

	kvID := result.CanonicalVerticalID
	product, err := store.FindCanonicalEntity(ctx, kvID, model.EntityTypeProduct, "宋PLUS")
	require.NoError(t, err)
	mapping, err := store.GetMapping(ctx, kvID, product.ID)
	require.NoError(t, err)
	assert.True(t, mapping.IsValidated)
	assert.Equal(t, model.MappingFeedback, mapping.Source)

	payload = basePayload(run)
	payload.Mappings = []model.MappingFeedbackItem{{
		Action: model.MappingActionReject, ProductName: "宋PLUS", BrandName: "比亚迪",
	}}
	_, err = proc.Submit(ctx, payload, "alice", "")
	require.NoError(t, err)

	mapping, err = store.GetMapping(ctx, kvID, product.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MappingReject, mapping.Source)
	assert.False(t, mapping.IsValidated)

	// Automation cannot override a user rejection.
	applied, err := store.UpsertMapping(ctx, &model.ProductBrandMapping{
		VerticalID: kvID, ProductID: product.ID, BrandID: mapping.BrandID,
		Confidence: 0.99, Source: model.MappingProximity,
	})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestSubmitTranslationOverride(t *testing.T) {
	proc, store, run := newTestProcessor(t)
	ctx := context.Background()

	payload := basePayload(run)
	payload.Translations = []model.TranslationFeedbackItem{{
		CanonicalName: "比亚迪",
		Language:      "en",
		OverrideText:  "BYD",
		Type:          model.EntityTypeBrand,
	}}
	result, err := proc.Submit(ctx, payload, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied.Translations)

	overrides, err := store.ListTranslationOverrides(ctx, result.CanonicalVerticalID)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, "BYD", overrides[0].OverrideText)
}

func TestSubmitRejectsUnsupportedOverrideLanguage(t *testing.T) {
	proc, _, run := newTestProcessor(t)

	payload := basePayload(run)
	payload.Translations = []model.TranslationFeedbackItem{{
		CanonicalName: "比亚迪", Language: "fr", OverrideText: "BYD",
	}}
	_, err := proc.Submit(context.Background(), payload, "alice", "")
	require.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestSubmitBadItemBecomesWarning(t *testing.T) {
	proc, _, run := newTestProcessor(t)
	ctx := context.Background()

	payload := basePayload(run)
	payload.Mappings = []model.MappingFeedbackItem{
		{Action: model.MappingActionAdd, ProductName: "宋PLUS", BrandName: "比亚迪"},
		{Action: model.MappingActionReject, ProductName: "宋PLUS", BrandName: "吉利"},
	}

	result, err := proc.Submit(ctx, payload, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied.Mappings)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "mappings[1]")
}
