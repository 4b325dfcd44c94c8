package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/service"
)

// Config holds the tunable pipeline parameters. Zero values fall back to
// the documented defaults.
type Config struct {
	AmbiguityThreshold    float64
	MergeThreshold        float64
	ProximityShare        float64
	BatchSize             int
	AutoValidateThreshold int
	ProximityMinCount     int
	RemoteConcurrency     int64
	LocalConcurrency      int64
}

// DefaultConfig returns the documented pipeline defaults.
func DefaultConfig() Config {
	return Config{
		AmbiguityThreshold:    DefaultAmbiguityThreshold,
		MergeThreshold:        0.85,
		ProximityShare:        0.6,
		BatchSize:             DefaultVerifierBatchSize,
		AutoValidateThreshold: 3,
		ProximityMinCount:     2,
		RemoteConcurrency:     DefaultRemoteConcurrency,
		LocalConcurrency:      DefaultLocalConcurrency,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AmbiguityThreshold <= 0 {
		c.AmbiguityThreshold = d.AmbiguityThreshold
	}
	if c.MergeThreshold <= 0 {
		c.MergeThreshold = d.MergeThreshold
	}
	if c.ProximityShare <= 0 {
		c.ProximityShare = d.ProximityShare
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.AutoValidateThreshold <= 0 {
		c.AutoValidateThreshold = d.AutoValidateThreshold
	}
	if c.ProximityMinCount <= 0 {
		c.ProximityMinCount = d.ProximityMinCount
	}
	if c.RemoteConcurrency <= 0 {
		c.RemoteConcurrency = d.RemoteConcurrency
	}
	if c.LocalConcurrency <= 0 {
		c.LocalConcurrency = d.LocalConcurrency
	}
	return c
}

// Engine wires the pipeline together over the persistence, LLM, and
// knowledge ports.
type Engine struct {
	storage   service.Storage
	llm       service.LLMClient
	knowledge service.KnowledgeLookup
	limiter   *Limiter
	verifier  *Verifier
	resolver  *Resolver
	gate      *Gate
	cfg       Config
}

// New creates an engine. The LLM client may be nil; every LLM-dependent
// stage then falls back to its documented keep-as-is behavior.
func New(storage service.Storage, llmClient service.LLMClient, lookup service.KnowledgeLookup, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	limiter := NewLimiter(cfg.RemoteConcurrency, cfg.LocalConcurrency)
	return &Engine{
		storage:   storage,
		llm:       llmClient,
		knowledge: lookup,
		limiter:   limiter,
		verifier:  NewVerifier(llmClient, limiter, cfg.AmbiguityThreshold, cfg.BatchSize),
		resolver:  NewResolver(llmClient, limiter, cfg.ProximityShare, cfg.ProximityMinCount),
		gate:      NewGate(llmClient, limiter, cfg.BatchSize),
		cfg:       cfg,
	}
}

// StartRun creates a vertical if needed and opens a new run for it.
func (e *Engine) StartRun(ctx context.Context, verticalName, description string) (*model.Run, error) {
	vertical, err := e.storage.CreateVertical(ctx, verticalName, description)
	if err != nil {
		return nil, fmt.Errorf("creating vertical: %w", err)
	}
	run := &model.Run{
		ID:         uuid.NewString(),
		VerticalID: vertical.ID,
		Status:     model.RunPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.storage.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return run, nil
}

// AddAnswer stores one raw answer under a run.
func (e *Engine) AddAnswer(ctx context.Context, runID, text, llmModel string) (*model.Answer, error) {
	answer := &model.Answer{
		ID:    uuid.NewString(),
		RunID: runID,
		Text:  text,
		Model: llmModel,
	}
	if err := e.storage.SaveAnswer(ctx, answer); err != nil {
		return nil, fmt.Errorf("saving answer: %w", err)
	}
	return answer, nil
}

// ProcessRun extracts entities from every answer of a run in parallel, then
// marks the run completed. Per-answer extraction tasks are independent;
// each writes only its own answer's result row. A single failed answer
// fails the run.
func (e *Engine) ProcessRun(ctx context.Context, runID string) error {
	run, err := e.storage.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}
	vertical, err := e.storage.GetVerticalByID(ctx, run.VerticalID)
	if err != nil {
		return fmt.Errorf("loading vertical: %w", err)
	}
	answers, err := e.storage.GetAnswers(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading answers: %w", err)
	}

	if err := e.storage.UpdateRunStatus(ctx, runID, model.RunRunning); err != nil {
		return fmt.Errorf("starting run: %w", err)
	}

	slog.Info("processing run", "run_id", runID, "vertical", vertical.Name, "answers", len(answers))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(int(e.cfg.LocalConcurrency))
	for _, answer := range answers {
		answer := answer
		group.Go(func() error {
			result, err := e.ExtractEntities(groupCtx, answer.Text, vertical.Name, vertical.Description)
			if err != nil {
				return fmt.Errorf("extracting answer %s: %w", answer.ID, err)
			}
			return e.storage.SaveExtractionResult(groupCtx, answer.ID, result)
		})
	}
	if err := group.Wait(); err != nil {
		if statusErr := e.storage.UpdateRunStatus(ctx, runID, model.RunFailed); statusErr != nil {
			slog.Error("failed to mark run failed", "run_id", runID, "error", statusErr)
		}
		return err
	}

	return e.storage.UpdateRunStatus(ctx, runID, model.RunCompleted)
}
