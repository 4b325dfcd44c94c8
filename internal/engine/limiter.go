// Package engine orchestrates the extraction pipeline per run: candidate
// generation and classification per answer, ambiguity verification against
// the LLM, cross-run consolidation, product-brand resolution, and the
// vertical relevance gate.
package engine

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Default concurrency budgets. Remote bounds LLM round trips; local bounds
// in-process model work such as snippet extraction.
const (
	DefaultRemoteConcurrency = 3
	DefaultLocalConcurrency  = 5
)

// Limiter enforces the two independent concurrency budgets.
type Limiter struct {
	remote *semaphore.Weighted
	local  *semaphore.Weighted
}

// NewLimiter creates a limiter. Non-positive budgets fall back to defaults.
func NewLimiter(remote, local int64) *Limiter {
	if remote <= 0 {
		remote = DefaultRemoteConcurrency
	}
	if local <= 0 {
		local = DefaultLocalConcurrency
	}
	return &Limiter{
		remote: semaphore.NewWeighted(remote),
		local:  semaphore.NewWeighted(local),
	}
}

// Remote runs fn under the remote LLM budget.
func (l *Limiter) Remote(ctx context.Context, fn func(context.Context) error) error {
	if err := l.remote.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.remote.Release(1)
	return fn(ctx)
}

// Local runs fn under the local model budget.
func (l *Limiter) Local(ctx context.Context, fn func(context.Context) error) error {
	if err := l.local.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.local.Release(1)
	return fn(ctx)
}
