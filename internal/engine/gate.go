package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/llm"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/service"
)

// Gate retracts mentions of brands the LLM judges irrelevant to the tracked
// vertical. Validated brands are trusted and never re-checked.
type Gate struct {
	client    service.LLMClient
	limiter   *Limiter
	batchSize int
}

// NewGate creates a vertical gate.
func NewGate(client service.LLMClient, limiter *Limiter, batchSize int) *Gate {
	if batchSize <= 0 {
		batchSize = DefaultVerifierBatchSize
	}
	return &Gate{client: client, limiter: limiter, batchSize: batchSize}
}

// Apply checks the run's discovered brands in batches and retracts the
// off-vertical ones: every mention of the brand and of its mapped products
// flips to not mentioned, and the brand is recorded once with the
// off-vertical rejection reason. A gate failure keeps everything, it never
// fails the run. Returns the number of brands retracted.
func (g *Gate) Apply(ctx context.Context, store service.Store, runID string, vertical *model.Vertical,
	kvID int64, brands map[string]*entityRecord, evidence map[string][]string) (int, error) {
	if g.client == nil {
		return 0, nil
	}

	var unchecked []string
	for name, brand := range brands {
		if !brand.validated {
			unchecked = append(unchecked, name)
		}
	}
	if len(unchecked) == 0 {
		return 0, nil
	}
	sort.Strings(unchecked)

	rejected := 0
	for start := 0; start < len(unchecked); start += g.batchSize {
		end := start + g.batchSize
		if end > len(unchecked) {
			end = len(unchecked)
		}
		batch := unchecked[start:end]

		verdicts, ok := g.checkBatch(ctx, vertical, batch, evidence)
		if !ok {
			continue
		}
		for _, verdict := range verdicts {
			if verdict.Relevant {
				continue
			}
			brand := lookupBrand(brands, verdict.Name)
			if brand == nil {
				continue
			}
			if err := g.retract(ctx, store, runID, kvID, brand); err != nil {
				return rejected, err
			}
			rejected++
		}
	}
	return rejected, nil
}

type gateVerdict struct {
	Name     string `json:"name"`
	Relevant bool   `json:"relevant"`
}

func (g *Gate) checkBatch(ctx context.Context, vertical *model.Vertical, batch []string, evidence map[string][]string) ([]gateVerdict, bool) {
	var response string
	err := g.limiter.Remote(ctx, func(ctx context.Context) error {
		return common.WithRetry(ctx, func() error {
			var callErr error
			response, callErr = g.client.Complete(ctx,
				gateSystemPrompt(vertical.Name, vertical.Description),
				gateUserPrompt(batch, evidence))
			return callErr
		}, common.RetryOptions{MaxAttempts: 2, InitialDelay: 200 * time.Millisecond})
	})
	if err != nil {
		slog.Warn("vertical gate unavailable, keeping all brands",
			"vertical", vertical.Name, "batch_size", len(batch), "error", err)
		return nil, false
	}

	var verdicts []gateVerdict
	if err := llm.ParseJSONResponse(response, &verdicts); err != nil {
		slog.Warn("vertical gate response unparseable, keeping all brands",
			"vertical", vertical.Name, "error", err)
		return nil, false
	}
	return verdicts, true
}

// retract flips the brand's mentions and those of its mapped products, and
// records the rejection once. Re-rejection in a later run is a no-op.
func (g *Gate) retract(ctx context.Context, store service.Store, runID string, kvID int64, brand *entityRecord) error {
	ids := []int64{brand.id}

	mappings, err := store.ListMappings(ctx, kvID)
	if err != nil {
		return err
	}
	for _, mapping := range mappings {
		if mapping.BrandID == brand.id {
			ids = append(ids, mapping.ProductID)
		}
	}

	if err := store.RetractMentions(ctx, runID, ids); err != nil {
		return err
	}

	slog.Info("brand judged off-vertical, mentions retracted",
		"brand", brand.name, "linked_products", len(ids)-1)
	return store.AddRejectedEntity(ctx, &model.RejectedEntity{
		VerticalID: kvID,
		Type:       model.EntityTypeBrand,
		Name:       brand.name,
		Reason:     model.RejectionReasonOffVertical,
	})
}

func lookupBrand(brands map[string]*entityRecord, name string) *entityRecord {
	if brand, ok := brands[name]; ok {
		return brand
	}
	key := model.FoldKey(name)
	for _, brand := range brands {
		if model.FoldKey(brand.name) == key {
			return brand
		}
	}
	return nil
}
