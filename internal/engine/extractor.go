package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/extract"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/textnorm"
)

// ExtractEntities runs one answer through the full per-answer pipeline:
// normalization, candidate generation, rule classification, ambiguity
// verification, list-aware filtering, and surface clustering under known
// canonical names. A failed knowledge lookup degrades to an empty
// augmentation context rather than failing the answer.
func (e *Engine) ExtractEntities(ctx context.Context, text, vertical, description string) (*model.ExtractionResult, error) {
	normalized := textnorm.NormalizeForNER(text)

	aug := e.augmentation(ctx, vertical)

	seeds := seedNames(aug)
	candidates := extract.NewGenerator(seeds...).Generate(normalized)
	scored := extract.NewClassifier(aug).ClassifyAll(candidates)

	debug := &model.ExtractionDebug{}
	for _, cand := range candidates {
		kept := false
		for _, s := range scored {
			if s.Name == cand.Name {
				kept = true
				break
			}
		}
		if !kept {
			debug.RejectedAtFilter = append(debug.RejectedAtFilter, cand.Name)
		}
	}

	verified := e.verifier.Verify(ctx, scored, vertical, description, aug)

	info := extract.AnalyzeList(normalized)
	filtered := extract.FilterPrimary(info, verified)
	debug.RejectedAtListFilter = filtered.Rejected

	result := &model.ExtractionResult{
		Brands:        make(map[string][]string),
		Products:      make(map[string][]string),
		Relationships: make(map[string]string),
		Debug:         debug,
	}

	for _, cand := range filtered.Kept {
		canonical, variants := clusterSurface(aug, cand)
		switch cand.Type {
		case model.EntityTypeProduct:
			result.Products[canonical] = appendVariants(result.Products[canonical], variants)
			debug.RawProducts = append(debug.RawProducts, cand.Name)
		default:
			result.Brands[canonical] = appendVariants(result.Brands[canonical], variants)
			debug.RawBrands = append(debug.RawBrands, cand.Name)
		}
	}

	// Per-answer proximity relationships: the first brand sharing a list
	// item with a product is its in-answer parent hint.
	relateWithinItems(info, result)

	for name := range result.Brands {
		debug.FinalBrands = append(debug.FinalBrands, name)
	}
	for name := range result.Products {
		debug.FinalProducts = append(debug.FinalProducts, name)
	}
	return result, nil
}

// augmentation fetches the knowledge context, degrading to empty on failure.
func (e *Engine) augmentation(ctx context.Context, vertical string) *model.AugmentationContext {
	if e.knowledge == nil {
		return nil
	}
	aug, err := e.knowledge.AugmentationContext(ctx, vertical)
	if err != nil {
		if !errors.Is(err, common.ErrKnowledgeUnavailable) {
			slog.Warn("knowledge lookup failed, extracting without context",
				"vertical", vertical, "error", err)
		}
		return nil
	}
	return aug
}

// seedNames collects the validated canonical names and aliases as exact-match
// generation seeds.
func seedNames(aug *model.AugmentationContext) []string {
	if aug == nil {
		return nil
	}
	var seeds []string
	for _, set := range [][]model.PromptExample{aug.ValidatedBrands, aug.ValidatedProducts} {
		for _, ex := range set {
			seeds = append(seeds, ex.CanonicalName)
			seeds = append(seeds, ex.Aliases...)
		}
	}
	return seeds
}

// clusterSurface folds a candidate onto its knowledge-base canonical name
// when the surface form is a known alias, so per-answer results already
// speak in canonical names where possible.
func clusterSurface(aug *model.AugmentationContext, cand model.ScoredCandidate) (string, []string) {
	if aug == nil || !cand.Bypass {
		return cand.Name, []string{cand.Name}
	}
	sets := aug.ValidatedBrands
	if cand.Type == model.EntityTypeProduct {
		sets = aug.ValidatedProducts
	}
	key := model.FoldKey(cand.Name)
	for _, ex := range sets {
		if model.FoldKey(ex.CanonicalName) == key {
			return ex.CanonicalName, []string{cand.Name}
		}
		for _, alias := range ex.Aliases {
			if model.FoldKey(alias) == key {
				return ex.CanonicalName, []string{ex.CanonicalName, cand.Name}
			}
		}
	}
	return cand.Name, []string{cand.Name}
}

func appendVariants(existing, incoming []string) []string {
	for _, v := range incoming {
		dup := false
		for _, have := range existing {
			if model.FoldKey(have) == model.FoldKey(v) {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, v)
		}
	}
	return existing
}

// relateWithinItems fills the per-answer product->brand hints from shared
// list items. Unstructured answers with exactly one brand relate every
// product to it.
func relateWithinItems(info *extract.ListInfo, result *model.ExtractionResult) {
	if !info.IsList() {
		if len(result.Brands) != 1 {
			return
		}
		var only string
		for name := range result.Brands {
			only = name
		}
		for product := range result.Products {
			result.Relationships[product] = only
		}
		return
	}

	for _, item := range info.Items {
		for product, productForms := range result.Products {
			if _, done := result.Relationships[product]; done {
				continue
			}
			if !anyIn(item, productForms) {
				continue
			}
			for brand, brandForms := range result.Brands {
				if anyIn(item, brandForms) {
					result.Relationships[product] = brand
					break
				}
			}
		}
	}
}

func anyIn(text string, forms []string) bool {
	for _, form := range forms {
		if extract.ContainsFold(text, form) {
			return true
		}
	}
	return false
}
