package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/consolidate"
	"github.com/koehnden/dragon-lens/internal/extract"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/service"
	"github.com/koehnden/dragon-lens/internal/textnorm"
)

// ConsolidateRun merges the per-answer extraction results of a completed run
// into canonical entities, writes mentions with textual ranks, resolves
// product-brand mappings, and applies the vertical gate. All writes happen
// in one transaction. Consolidation requires every extraction task to have
// finished, which run completion guarantees.
func (e *Engine) ConsolidateRun(ctx context.Context, runID string) (*model.ConsolidationResult, error) {
	run, err := e.storage.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run: %w", err)
	}
	if run.Status != model.RunCompleted {
		return nil, fmt.Errorf("run %s has status %s: %w", runID, run.Status, common.ErrRunNotCompleted)
	}
	vertical, err := e.storage.GetVerticalByID(ctx, run.VerticalID)
	if err != nil {
		return nil, fmt.Errorf("loading vertical: %w", err)
	}
	answers, err := e.storage.GetRunEntities(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run entities: %w", err)
	}

	brandCounts, productCounts := countMentions(answers)

	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning consolidation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	kv, err := e.canonicalVertical(ctx, tx, vertical)
	if err != nil {
		return nil, err
	}

	result := &model.ConsolidationResult{}

	brands, err := e.consolidateType(ctx, tx, kv.ID, model.EntityTypeBrand, brandCounts, result)
	if err != nil {
		return nil, err
	}
	products, err := e.consolidateType(ctx, tx, kv.ID, model.EntityTypeProduct, productCounts, result)
	if err != nil {
		return nil, err
	}

	evidence, err := e.writeMentions(ctx, tx, answers, brands, products)
	if err != nil {
		return nil, err
	}

	if _, err := e.resolver.Resolve(ctx, tx, kv.ID, vertical.Name, answers, brands, products); err != nil {
		return nil, fmt.Errorf("resolving product brands: %w", err)
	}

	if _, err := e.gate.Apply(ctx, tx, runID, vertical, kv.ID, brands, evidence); err != nil {
		return nil, fmt.Errorf("applying vertical gate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing consolidation: %w", err)
	}

	slog.Info("run consolidated",
		"run_id", runID,
		"brands_created", result.CanonicalBrandsCreated,
		"products_created", result.CanonicalProductsCreated,
		"brands_merged", result.BrandsMerged,
		"products_merged", result.ProductsMerged,
		"brands_flagged", result.BrandsFlagged,
		"products_flagged", result.ProductsFlagged)
	return result, nil
}

// canonicalVertical resolves the run's local vertical name to its canonical
// knowledge vertical, creating one on first sight. A resolution failure
// never fails consolidation.
func (e *Engine) canonicalVertical(ctx context.Context, store service.Store, vertical *model.Vertical) (*model.KnowledgeVertical, error) {
	kv, err := store.ResolveVertical(ctx, vertical.Name)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		slog.Warn("canonical vertical resolution failed, using local scope",
			"vertical", vertical.Name, "error", err)
	}
	return store.CreateKnowledgeVertical(ctx, vertical.Name)
}

// countMentions tallies, per raw name, the number of answers mentioning it.
func countMentions(answers []model.AnswerEntities) (brands, products map[string]int) {
	brands = make(map[string]int)
	products = make(map[string]int)
	for _, answer := range answers {
		for _, name := range answer.RawBrands {
			brands[name]++
		}
		for _, name := range answer.RawProducts {
			products[name]++
		}
	}
	return brands, products
}

// consolidateType merges one entity type's raw names into canonical records
// and flags the thin ones for review.
func (e *Engine) consolidateType(ctx context.Context, store service.Store, kvID int64,
	entityType model.EntityType, counts map[string]int, result *model.ConsolidationResult) (map[string]*entityRecord, error) {
	records := make(map[string]*entityRecord)

	groups := consolidate.GroupNames(counts, e.cfg.MergeThreshold)
	for _, group := range groups {
		rejected, err := store.IsRejected(ctx, kvID, entityType, group.Canonical)
		if err != nil {
			return nil, err
		}
		if rejected {
			continue
		}

		existing, err := store.FindCanonicalEntity(ctx, kvID, entityType, group.Canonical)
		isNew := errors.Is(err, common.ErrNotFound)
		if err != nil && !isNew {
			return nil, err
		}

		record := &entityRecord{name: group.Canonical, count: group.MentionCount}
		if isNew {
			id, err := store.CreateCanonicalEntity(ctx, &model.CanonicalEntity{
				VerticalID:    kvID,
				Type:          entityType,
				CanonicalName: group.Canonical,
				MentionCount:  group.MentionCount,
			})
			if err != nil {
				return nil, err
			}
			record.id = id
			addCreated(result, entityType)
		} else {
			if err := store.IncrementMentionCount(ctx, existing.ID, group.MentionCount); err != nil {
				return nil, err
			}
			record.id = existing.ID
			record.count += existing.MentionCount
			record.validated = existing.IsValidated
		}

		for _, alias := range group.Aliases {
			if err := store.AddAlias(ctx, &model.Alias{CanonicalID: record.id, Alias: alias}); err != nil {
				return nil, err
			}
			addMerged(result, entityType)
		}

		record.surfaces = append([]string{group.Canonical}, group.Aliases...)

		switch {
		case record.count >= e.cfg.AutoValidateThreshold:
			if err := store.SetValidated(ctx, record.id, model.ValidationAuto); err != nil {
				return nil, err
			}
			record.validated = true
		case record.validated:
			// Merged into an already-validated canonical: nothing to flag.
		default:
			err := store.CreateValidationCandidate(ctx, &model.ValidationCandidate{
				VerticalID:   kvID,
				Type:         entityType,
				Name:         group.Canonical,
				MentionCount: record.count,
			})
			if err != nil {
				return nil, err
			}
			addFlagged(result, entityType)
		}

		records[group.Canonical] = record
	}
	return records, nil
}

// writeMentions records, per answer, a mention row for every canonical
// entity whose surface forms appear in the answer, with the textual rank and
// up to three evidence snippets. Returns the evidence map keyed by brand
// name for the vertical gate.
func (e *Engine) writeMentions(ctx context.Context, store service.Store, answers []model.AnswerEntities,
	brands, products map[string]*entityRecord) (map[string][]string, error) {
	evidence := make(map[string][]string)

	for _, answer := range answers {
		normalized := textnorm.NormalizeForNER(answer.AnswerText)
		info := extract.AnalyzeList(normalized)

		variants := make(map[string][]string)
		for name, record := range brands {
			if containsAny(normalized, record.surfaces) {
				variants[name] = record.surfaces
			}
		}
		for name, record := range products {
			if containsAny(normalized, record.surfaces) {
				variants[name] = record.surfaces
			}
		}
		if len(variants) == 0 {
			continue
		}

		ranks := extract.RankEntities(info, variants)

		var mentions []model.Mention
		names := make([]string, 0, len(variants))
		for name := range variants {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			record, entityType := brands[name], model.EntityTypeBrand
			if record == nil {
				record, entityType = products[name], model.EntityTypeProduct
			}

			snippets := snippetsFor(info, normalized, record.surfaces)
			if entityType == model.EntityTypeBrand {
				for _, s := range snippets {
					if len(evidence[name]) < maxEvidenceSnippets {
						evidence[name] = append(evidence[name], s)
					}
				}
			}

			mention := model.Mention{
				AnswerID:         answer.AnswerID,
				EntityID:         record.id,
				Type:             entityType,
				Mentioned:        true,
				Sentiment:        model.SentimentNeutral,
				EvidenceSnippets: snippets,
			}
			if rank, ok := ranks[name]; ok {
				mention.Rank = &rank
			}
			mentions = append(mentions, mention)
		}

		if err := store.SaveMentions(ctx, mentions); err != nil {
			return nil, err
		}
	}
	return evidence, nil
}

// snippetsFor collects up to three regions of the answer containing any of
// the entity's surface forms.
func snippetsFor(info *extract.ListInfo, normalized string, surfaces []string) []string {
	regions := []string{normalized}
	if info.IsList() {
		regions = info.Items
	}
	var snippets []string
	for _, region := range regions {
		if len(snippets) >= maxEvidenceSnippets {
			break
		}
		if containsAny(region, surfaces) {
			snippets = append(snippets, truncateSnippet(region))
		}
	}
	return snippets
}

func addCreated(result *model.ConsolidationResult, entityType model.EntityType) {
	if entityType == model.EntityTypeBrand {
		result.CanonicalBrandsCreated++
	} else {
		result.CanonicalProductsCreated++
	}
}

func addMerged(result *model.ConsolidationResult, entityType model.EntityType) {
	if entityType == model.EntityTypeBrand {
		result.BrandsMerged++
	} else {
		result.ProductsMerged++
	}
}

func addFlagged(result *model.ConsolidationResult, entityType model.EntityType) {
	if entityType == model.EntityTypeBrand {
		result.BrandsFlagged++
	} else {
		result.ProductsFlagged++
	}
}
