package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/llm"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/service"
)

// Verifier defaults.
const (
	DefaultAmbiguityThreshold = 0.6
	DefaultVerifierBatchSize  = 30
)

// Verifier escalates ambiguous candidates to the LLM in bounded batches.
// Verification is terminal per batch: a name confirmed as a brand is never
// offered to the product check.
type Verifier struct {
	client    service.LLMClient
	limiter   *Limiter
	threshold float64
	batchSize int
}

// NewVerifier creates a batch verifier. Non-positive options fall back to
// defaults.
func NewVerifier(client service.LLMClient, limiter *Limiter, threshold float64, batchSize int) *Verifier {
	if threshold <= 0 {
		threshold = DefaultAmbiguityThreshold
	}
	if batchSize <= 0 {
		batchSize = DefaultVerifierBatchSize
	}
	return &Verifier{client: client, limiter: limiter, threshold: threshold, batchSize: batchSize}
}

type verifierVerdict struct {
	Name      string `json:"name"`
	IsBrand   bool   `json:"is_brand"`
	IsProduct bool   `json:"is_product"`
}

// Verify returns the candidates that survive verification. Candidates at or
// above the ambiguity threshold, and knowledge-bypassed ones, pass through
// untouched. Below-threshold candidates are dropped only on an explicit LLM
// "no"; when the verifier is unavailable or its response unparseable they
// keep their prior classification.
func (v *Verifier) Verify(ctx context.Context, candidates []model.ScoredCandidate, vertical, description string, aug *model.AugmentationContext) []model.ScoredCandidate {
	var confident, ambiguous []model.ScoredCandidate
	for _, cand := range candidates {
		if cand.Bypass || cand.Score() >= v.threshold {
			confident = append(confident, cand)
		} else {
			ambiguous = append(ambiguous, cand)
		}
	}
	if len(ambiguous) == 0 || v.client == nil {
		return candidates
	}

	out := confident
	for start := 0; start < len(ambiguous); start += v.batchSize {
		end := start + v.batchSize
		if end > len(ambiguous) {
			end = len(ambiguous)
		}
		out = append(out, v.verifyBatch(ctx, ambiguous[start:end], vertical, description, aug)...)
	}
	return out
}

// verifyBatch runs the brand check over one batch, then the product check
// over the names the brand check did not confirm.
func (v *Verifier) verifyBatch(ctx context.Context, batch []model.ScoredCandidate, vertical, description string, aug *model.AugmentationContext) []model.ScoredCandidate {
	names := make([]string, len(batch))
	for i, cand := range batch {
		names[i] = cand.Name
	}

	brandVerdicts, ok := v.check(ctx, model.EntityTypeBrand, names, vertical, description, aug)
	if !ok {
		// Verification unavailable: keep prior classifications, drop nothing.
		return batch
	}

	byName := make(map[string]model.ScoredCandidate, len(batch))
	for _, cand := range batch {
		byName[model.FoldKey(cand.Name)] = cand
	}

	var kept []model.ScoredCandidate
	var remainder []string
	decided := make(map[string]bool, len(batch))
	for _, verdict := range brandVerdicts {
		key := model.FoldKey(verdict.Name)
		cand, known := byName[key]
		if !known || decided[key] {
			continue
		}
		decided[key] = true
		if verdict.IsBrand {
			cand.Type = model.EntityTypeBrand
			kept = append(kept, cand)
		} else {
			remainder = append(remainder, cand.Name)
		}
	}
	// Names the response omitted keep their prior classification.
	for _, cand := range batch {
		if !decided[model.FoldKey(cand.Name)] {
			kept = append(kept, cand)
			decided[model.FoldKey(cand.Name)] = true
		}
	}

	if len(remainder) == 0 {
		return kept
	}

	productVerdicts, ok := v.check(ctx, model.EntityTypeProduct, remainder, vertical, description, aug)
	if !ok {
		for _, name := range remainder {
			kept = append(kept, byName[model.FoldKey(name)])
		}
		return kept
	}

	answered := make(map[string]bool, len(remainder))
	for _, verdict := range productVerdicts {
		key := model.FoldKey(verdict.Name)
		cand, known := byName[key]
		if !known || answered[key] {
			continue
		}
		answered[key] = true
		if verdict.IsProduct {
			cand.Type = model.EntityTypeProduct
			kept = append(kept, cand)
		}
		// An explicit no from both checks drops the candidate.
	}
	for _, name := range remainder {
		if !answered[model.FoldKey(name)] {
			kept = append(kept, byName[model.FoldKey(name)])
		}
	}
	return kept
}

// check performs one role check call. The bool result reports whether a
// usable verdict list came back; false means callers must fall back.
func (v *Verifier) check(ctx context.Context, role model.EntityType, names []string, vertical, description string, aug *model.AugmentationContext) ([]verifierVerdict, bool) {
	system := verifierSystemPrompt(role, vertical, description)
	user := verifierUserPrompt(names, aug)

	var response string
	err := v.limiter.Remote(ctx, func(ctx context.Context) error {
		return common.WithRetry(ctx, func() error {
			var callErr error
			response, callErr = v.client.Complete(ctx, system, user)
			return callErr
		}, common.RetryOptions{MaxAttempts: 2, InitialDelay: 200 * time.Millisecond})
	})
	if err != nil {
		slog.Warn("verification unavailable, keeping prior classification",
			"role", role, "batch_size", len(names), "error", err)
		return nil, false
	}

	var verdicts []verifierVerdict
	if err := llm.ParseJSONResponse(response, &verdicts); err != nil {
		slog.Warn("verifier response unparseable, keeping prior classification",
			"role", role, "error", err)
		return nil, false
	}
	return verdicts, true
}
