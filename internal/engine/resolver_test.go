package engine

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

type resolverFixture struct {
	store    *storage.SQLiteStorage
	kvID     int64
	brands   map[string]*entityRecord
	products map[string]*entityRecord
}

func newResolverFixture(t *testing.T, brandNames, productNames []string) *resolverFixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	kv, err := store.CreateKnowledgeVertical(ctx, "SUV Cars")
	require.NoError(t, err)

	f := &resolverFixture{
		store:    store,
		kvID:     kv.ID,
		brands:   make(map[string]*entityRecord),
		products: make(map[string]*entityRecord),
	}
	for _, name := range brandNames {
		id, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
			VerticalID: kv.ID, Type: model.EntityTypeBrand, CanonicalName: name,
		})
		require.NoError(t, err)
		f.brands[name] = &entityRecord{name: name, id: id, surfaces: []string{name}}
	}
	for _, name := range productNames {
		id, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
			VerticalID: kv.ID, Type: model.EntityTypeProduct, CanonicalName: name,
		})
		require.NoError(t, err)
		f.products[name] = &entityRecord{name: name, id: id, surfaces: []string{name}}
	}
	return f
}

func answersOf(texts ...string) []model.AnswerEntities {
	answers := make([]model.AnswerEntities, len(texts))
	for i, text := range texts {
		answers[i] = model.AnswerEntities{AnswerID: "a", AnswerText: text}
	}
	return answers
}

func TestResolverProximityNeedsNoLLM(t *testing.T) {
	f := newResolverFixture(t, []string{"Toyota", "Honda"}, []string{"RAV4"})
	mock := NewMockLLM()
	r := NewResolver(mock, NewLimiter(0, 0), 0, 0)

	// RAV4 shares a list item with Toyota in 4 of 5 answers.
	answers := answersOf(
		"- Toyota RAV4\n- Honda CR-V",
		"- Toyota RAV4\n- Honda CR-V",
		"- Toyota RAV4\n- Honda Pilot",
		"- Toyota RAV4\n- Honda Pilot",
		"- Honda RAV4\n- Toyota Corolla",
	)

	mapped, err := r.Resolve(context.Background(), f.store, f.kvID, "SUV Cars", answers, f.brands, f.products)
	require.NoError(t, err)
	assert.Equal(t, 1, mapped)
	assert.Zero(t, mock.CallCount(), "strong proximity evidence skips the LLM")

	mapping, err := f.store.GetMapping(context.Background(), f.kvID, f.products["RAV4"].id)
	require.NoError(t, err)
	assert.Equal(t, f.brands["Toyota"].id, mapping.BrandID)
	assert.Equal(t, model.MappingProximity, mapping.Source)
	assert.InDelta(t, 0.8, mapping.Confidence, 0.01)
}

func TestResolverFallsBackToForcedChoice(t *testing.T) {
	f := newResolverFixture(t, []string{"比亚迪", "吉利"}, []string{"星越L"})
	mock := NewMockLLM()
	mock.RespondWith("Candidate brands", `{"brand": "吉利"}`)
	r := NewResolver(mock, NewLimiter(0, 0), 0, 0)

	// Even co-occurrence split, no majority.
	answers := answersOf("星越L和比亚迪", "星越L和吉利")

	mapped, err := r.Resolve(context.Background(), f.store, f.kvID, "SUV Cars", answers, f.brands, f.products)
	require.NoError(t, err)
	assert.Equal(t, 1, mapped)
	assert.Equal(t, 1, mock.CallCount())

	mapping, err := f.store.GetMapping(context.Background(), f.kvID, f.products["星越L"].id)
	require.NoError(t, err)
	assert.Equal(t, f.brands["吉利"].id, mapping.BrandID)
	assert.Equal(t, model.MappingLLM, mapping.Source)
	assert.InDelta(t, llmMappingConfidence, mapping.Confidence, 0.001)
}

func TestResolverDiscardsInventedBrand(t *testing.T) {
	f := newResolverFixture(t, []string{"比亚迪", "吉利"}, []string{"星越L"})
	mock := NewMockLLM()
	mock.RespondWith("Candidate brands", `{"brand": "Tesla"}`)
	r := NewResolver(mock, NewLimiter(0, 0), 0, 0)

	answers := answersOf("星越L和比亚迪", "星越L和吉利")

	mapped, err := r.Resolve(context.Background(), f.store, f.kvID, "SUV Cars", answers, f.brands, f.products)
	require.NoError(t, err)
	assert.Zero(t, mapped)

	_, err = f.store.GetMapping(context.Background(), f.kvID, f.products["星越L"].id)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestResolverSkipsValidatedMapping(t *testing.T) {
	f := newResolverFixture(t, []string{"Toyota", "Honda"}, []string{"RAV4"})
	ctx := context.Background()
	_, err := f.store.UpsertMapping(ctx, &model.ProductBrandMapping{
		VerticalID: f.kvID, ProductID: f.products["RAV4"].id, BrandID: f.brands["Honda"].id,
		Confidence: 1.0, Source: model.MappingFeedback, IsValidated: true,
	})
	require.NoError(t, err)

	mock := NewMockLLM()
	r := NewResolver(mock, NewLimiter(0, 0), 0, 0)
	answers := answersOf("- Toyota RAV4\n- Honda CR-V", "- Toyota RAV4\n- Honda CR-V")

	mapped, err := r.Resolve(ctx, f.store, f.kvID, "SUV Cars", answers, f.brands, f.products)
	require.NoError(t, err)
	assert.Zero(t, mapped, "a validated mapping is never recomputed")

	mapping, err := f.store.GetMapping(ctx, f.kvID, f.products["RAV4"].id)
	require.NoError(t, err)
	assert.Equal(t, f.brands["Honda"].id, mapping.BrandID)
}
