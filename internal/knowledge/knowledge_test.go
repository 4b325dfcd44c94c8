package knowledge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return NewService(store), store
}

func TestAugmentationContextEmptyForUnknownVertical(t *testing.T) {
	svc, _ := newTestService(t)

	out, err := svc.AugmentationContext(context.Background(), "never seen")
	require.NoError(t, err)
	assert.Empty(t, out.ValidatedBrands)
	assert.Empty(t, out.RejectedBrands)
	assert.False(t, out.InBypass("anything"))
}

func TestAugmentationContextCollectsValidatedAndRejected(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	kv, err := store.CreateKnowledgeVertical(ctx, "SUV Cars")
	require.NoError(t, err)

	brandID, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID: kv.ID, Type: model.EntityTypeBrand, CanonicalName: "比亚迪",
	})
	require.NoError(t, err)
	require.NoError(t, store.SetValidated(ctx, brandID, model.ValidationFeedback))
	require.NoError(t, store.AddAlias(ctx, &model.Alias{CanonicalID: brandID, Alias: "BYD"}))

	// Unvalidated entities stay out of the context.
	_, err = store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID: kv.ID, Type: model.EntityTypeBrand, CanonicalName: "Tesla",
	})
	require.NoError(t, err)

	require.NoError(t, store.AddRejectedEntity(ctx, &model.RejectedEntity{
		VerticalID: kv.ID, Type: model.EntityTypeProduct, Name: "产品质量", Reason: "generic",
	}))

	out, err := svc.AugmentationContext(ctx, "SUV Cars")
	require.NoError(t, err)

	require.Len(t, out.ValidatedBrands, 1)
	assert.Equal(t, "比亚迪", out.ValidatedBrands[0].CanonicalName)
	assert.Equal(t, []string{"BYD"}, out.ValidatedBrands[0].Aliases)

	assert.True(t, out.InBrandBypass("比亚迪"))
	assert.True(t, out.InBrandBypass("byd"), "aliases join the bypass set casefolded")
	assert.False(t, out.InBrandBypass("Tesla"))

	require.Len(t, out.RejectedProducts, 1)
	assert.Equal(t, "产品质量", out.RejectedProducts[0].Name)
}

func TestEnsureVerticalCreatesOnFirstSight(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.EnsureVertical(ctx, "SUV Cars")
	require.NoError(t, err)

	// Second call resolves instead of duplicating.
	second, err := svc.EnsureVertical(ctx, "suv cars")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestValidatedMapping(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	kv, err := store.CreateKnowledgeVertical(ctx, "SUV Cars")
	require.NoError(t, err)

	brandID, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID: kv.ID, Type: model.EntityTypeBrand, CanonicalName: "Toyota",
	})
	require.NoError(t, err)
	productID, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
		VerticalID: kv.ID, Type: model.EntityTypeProduct, CanonicalName: "RAV4",
	})
	require.NoError(t, err)

	// No mapping yet.
	_, ok, err := svc.ValidatedMapping(ctx, "SUV Cars", "RAV4")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.UpsertMapping(ctx, &model.ProductBrandMapping{
		VerticalID: kv.ID, ProductID: productID, BrandID: brandID,
		Confidence: 0.9, Source: model.MappingFeedback, IsValidated: true,
	})
	require.NoError(t, err)

	// Fresh service so the negative cache entry from above doesn't mask
	// the new mapping.
	svc = NewService(store)
	brand, ok, err := svc.ValidatedMapping(ctx, "SUV Cars", "rav4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Toyota", brand)
}
