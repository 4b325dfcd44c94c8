package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/extract"
	"github.com/koehnden/dragon-lens/internal/llm"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/service"
	"github.com/koehnden/dragon-lens/internal/textnorm"
)

// Confidence assigned to LLM-resolved mappings; proximity mappings carry
// their co-occurrence share instead.
const llmMappingConfidence = 0.7

// entityRecord is the consolidator's in-memory view of one canonical entity
// during a run's post-processing.
type entityRecord struct {
	name      string
	surfaces  []string
	id        int64
	count     int
	validated bool
}

// Resolver assigns a parent brand to each discovered product, preferring
// co-occurrence proximity evidence and falling back to a forced-choice LLM
// call among the observed candidate brands.
type Resolver struct {
	client   service.LLMClient
	limiter  *Limiter
	share    float64
	minCount int
}

// NewResolver creates a resolver. Non-positive options fall back to the
// defaults (share 0.6, minimum count 2).
func NewResolver(client service.LLMClient, limiter *Limiter, share float64, minCount int) *Resolver {
	if share <= 0 {
		share = 0.6
	}
	if minCount <= 0 {
		minCount = 2
	}
	return &Resolver{client: client, limiter: limiter, share: share, minCount: minCount}
}

// Resolve computes product-brand mappings for one run and upserts them.
// Returns the number of mappings written. Products already covered by a
// validated mapping are skipped; the lookup goes through the supplied store
// so it stays inside the caller's transaction.
func (r *Resolver) Resolve(ctx context.Context, store service.Store, kvID int64, verticalName string,
	answers []model.AnswerEntities, brands, products map[string]*entityRecord) (int, error) {
	mapped := 0

	productNames := make([]string, 0, len(products))
	for name := range products {
		productNames = append(productNames, name)
	}
	sort.Strings(productNames)

	for _, productName := range productNames {
		product := products[productName]

		if existing, err := store.GetMapping(ctx, kvID, product.id); err == nil && existing.IsValidated {
			continue
		} else if err != nil && !errors.Is(err, common.ErrNotFound) {
			return mapped, err
		}

		counts, evidence := r.coOccurrences(answers, product, brands)
		if len(counts) == 0 {
			continue
		}

		topBrand, topCount, total := topCoOccurrence(counts)
		share := float64(topCount) / float64(total)

		var mapping *model.ProductBrandMapping
		if share >= r.share && topCount >= r.minCount {
			mapping = &model.ProductBrandMapping{
				VerticalID: kvID,
				ProductID:  product.id,
				BrandID:    brands[topBrand].id,
				Confidence: share,
				Source:     model.MappingProximity,
			}
		} else {
			chosen := r.forcedChoice(ctx, verticalName, productName, counts, evidence)
			if chosen == "" {
				continue
			}
			mapping = &model.ProductBrandMapping{
				VerticalID: kvID,
				ProductID:  product.id,
				BrandID:    brands[chosen].id,
				Confidence: llmMappingConfidence,
				Source:     model.MappingLLM,
			}
		}

		written, err := store.UpsertMapping(ctx, mapping)
		if err != nil {
			return mapped, err
		}
		if written {
			mapped++
		}
	}
	return mapped, nil
}

// coOccurrences counts, per candidate brand, how often it shares a list item
// with the product; unstructured answers count the whole answer as one item.
// Also collects up to three evidence snippets mentioning the product.
func (r *Resolver) coOccurrences(answers []model.AnswerEntities, product *entityRecord, brands map[string]*entityRecord) (map[string]int, []string) {
	counts := make(map[string]int)
	var evidence []string

	for _, answer := range answers {
		normalized := textnorm.NormalizeForNER(answer.AnswerText)
		info := extract.AnalyzeList(normalized)

		regions := []string{normalized}
		if info.IsList() {
			regions = info.Items
		}
		for _, region := range regions {
			if !containsAny(region, product.surfaces) {
				continue
			}
			if len(evidence) < maxEvidenceSnippets {
				evidence = append(evidence, truncateSnippet(region))
			}
			for brandName, brand := range brands {
				if containsAny(region, brand.surfaces) {
					counts[brandName]++
				}
			}
		}
	}
	return counts, evidence
}

func topCoOccurrence(counts map[string]int) (top string, topCount, total int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		total += counts[name]
		if counts[name] > topCount {
			top, topCount = name, counts[name]
		}
	}
	return top, topCount, total
}

// forcedChoice asks the LLM to pick among the observed candidate brands.
// Answers outside the candidate set are discarded; any failure resolves to
// no mapping, never an error for the run.
func (r *Resolver) forcedChoice(ctx context.Context, verticalName, productName string, counts map[string]int, evidence []string) string {
	if r.client == nil {
		return ""
	}

	candidates := make([]string, 0, len(counts))
	for name := range counts {
		candidates = append(candidates, name)
	}
	sort.Strings(candidates)

	var response string
	err := r.limiter.Remote(ctx, func(ctx context.Context) error {
		return common.WithRetry(ctx, func() error {
			var callErr error
			response, callErr = r.client.Complete(ctx,
				resolverSystemPrompt(verticalName),
				resolverUserPrompt(productName, candidates, evidence))
			return callErr
		}, common.RetryOptions{MaxAttempts: 2, InitialDelay: 200 * time.Millisecond})
	})
	if err != nil {
		slog.Warn("brand resolution call failed, leaving product unmapped",
			"product", productName, "error", err)
		return ""
	}

	var choice struct {
		Brand string `json:"brand"`
	}
	if err := llm.ParseJSONResponse(response, &choice); err != nil {
		if !errors.Is(err, common.ErrParseFailure) {
			slog.Warn("brand resolution parse failed", "product", productName, "error", err)
		}
		return ""
	}

	for _, candidate := range candidates {
		if model.FoldKey(candidate) == model.FoldKey(choice.Brand) ||
			textnorm.SameBrand(candidate, choice.Brand) {
			return candidate
		}
	}
	slog.Warn("brand resolution returned a name outside the candidate set, discarding",
		"product", productName, "returned", choice.Brand)
	return ""
}

func containsAny(text string, forms []string) bool {
	for _, form := range forms {
		if form == "" {
			continue
		}
		if strings.Contains(strings.ToLower(text), strings.ToLower(form)) {
			return true
		}
	}
	return false
}
