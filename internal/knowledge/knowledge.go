// Package knowledge exposes the cross-run knowledge base: canonical vertical
// resolution and the prompt augmentation context injected before extraction.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/service"
)

// Example caps keep prompts bounded no matter how much feedback a vertical
// has accumulated.
const (
	maxPositiveExamples = 20
	maxNegativeExamples = 100
)

const lookupCacheTTL = 5 * time.Minute

// Service implements service.KnowledgeLookup backed by the persistence
// layer. Lookups degrade gracefully: a failed resolution yields an empty
// context, never an error that would abort extraction.
type Service struct {
	store service.Store
	cache *gocache.Cache
}

// NewService creates a knowledge service.
func NewService(store service.Store) *Service {
	return &Service{
		store: store,
		cache: gocache.New(lookupCacheTTL, 2*lookupCacheTTL),
	}
}

// EnsureVertical resolves a local vertical name to its canonical vertical,
// creating one (with a self alias) on first sight.
func (s *Service) EnsureVertical(ctx context.Context, name string) (*model.KnowledgeVertical, error) {
	kv, err := s.store.ResolveVertical(ctx, name)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", common.ErrKnowledgeUnavailable, err)
	}
	return s.store.CreateKnowledgeVertical(ctx, name)
}

// AugmentationContext builds the prompt context for a vertical: validated
// entities as positive examples, rejected names as negative examples, and
// the bypass sets. An unresolvable vertical yields an empty context.
func (s *Service) AugmentationContext(ctx context.Context, verticalName string) (*model.AugmentationContext, error) {
	empty := &model.AugmentationContext{
		BrandBypass:   map[string]struct{}{},
		ProductBypass: map[string]struct{}{},
	}

	kv, err := s.store.ResolveVertical(ctx, verticalName)
	if errors.Is(err, common.ErrNotFound) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("%w: %v", common.ErrKnowledgeUnavailable, err)
	}

	out := empty
	for _, entityType := range []model.EntityType{model.EntityTypeBrand, model.EntityTypeProduct} {
		entities, err := s.store.ListCanonicalEntities(ctx, kv.ID, entityType)
		if err != nil {
			return empty, fmt.Errorf("%w: %v", common.ErrKnowledgeUnavailable, err)
		}

		for _, entity := range entities {
			if !entity.IsValidated {
				continue
			}
			aliases, err := s.store.ListAliases(ctx, entity.ID)
			if err != nil {
				return empty, fmt.Errorf("%w: %v", common.ErrKnowledgeUnavailable, err)
			}

			example := model.PromptExample{
				CanonicalName: entity.CanonicalName,
				DisplayName:   entity.DisplayName,
			}
			bypass := out.BrandBypass
			if entityType == model.EntityTypeProduct {
				bypass = out.ProductBypass
			}
			bypass[model.FoldKey(entity.CanonicalName)] = struct{}{}
			for _, a := range aliases {
				example.Aliases = append(example.Aliases, a.Alias)
				bypass[model.FoldKey(a.Alias)] = struct{}{}
			}

			if entityType == model.EntityTypeBrand && len(out.ValidatedBrands) < maxPositiveExamples {
				out.ValidatedBrands = append(out.ValidatedBrands, example)
			}
			if entityType == model.EntityTypeProduct && len(out.ValidatedProducts) < maxPositiveExamples {
				out.ValidatedProducts = append(out.ValidatedProducts, example)
			}
		}

		rejected, err := s.store.ListRejectedEntities(ctx, kv.ID, entityType)
		if err != nil {
			return empty, fmt.Errorf("%w: %v", common.ErrKnowledgeUnavailable, err)
		}
		for _, r := range rejected {
			example := model.RejectedExample{Name: r.Name, Reason: r.Reason}
			if entityType == model.EntityTypeBrand && len(out.RejectedBrands) < maxNegativeExamples {
				out.RejectedBrands = append(out.RejectedBrands, example)
			}
			if entityType == model.EntityTypeProduct && len(out.RejectedProducts) < maxNegativeExamples {
				out.RejectedProducts = append(out.RejectedProducts, example)
			}
		}
	}

	return out, nil
}

// ValidatedMapping answers whether the knowledge base already maps a product
// name to a brand for a vertical. Results are cached briefly since the
// resolver asks the same question for every answer in a run.
func (s *Service) ValidatedMapping(ctx context.Context, verticalName, productName string) (string, bool, error) {
	cacheKey := verticalName + "\x00" + model.FoldKey(productName)
	if cached, found := s.cache.Get(cacheKey); found {
		brand := cached.(string)
		return brand, brand != "", nil
	}

	kv, err := s.store.ResolveVertical(ctx, verticalName)
	if errors.Is(err, common.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", common.ErrKnowledgeUnavailable, err)
	}

	product, err := s.store.FindCanonicalEntity(ctx, kv.ID, model.EntityTypeProduct, productName)
	if errors.Is(err, common.ErrNotFound) {
		s.cache.SetDefault(cacheKey, "")
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", common.ErrKnowledgeUnavailable, err)
	}

	mapping, err := s.store.GetMapping(ctx, kv.ID, product.ID)
	if errors.Is(err, common.ErrNotFound) {
		s.cache.SetDefault(cacheKey, "")
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", common.ErrKnowledgeUnavailable, err)
	}
	if !mapping.IsValidated {
		return "", false, nil
	}

	brand, err := s.store.GetCanonicalEntity(ctx, mapping.BrandID)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", common.ErrKnowledgeUnavailable, err)
	}

	s.cache.SetDefault(cacheKey, brand.CanonicalName)
	return brand.CanonicalName, true, nil
}
