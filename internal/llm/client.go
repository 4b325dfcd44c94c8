// Package llm provides clients for the completion providers the extraction
// pipeline calls: entity verification, vertical gating, and product-brand
// resolution.
package llm

import (
	"context"
	"time"
)

// Client defines the interface for LLM providers.
type Client interface {
	// Complete sends one prompt pair and returns the raw response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// Name identifies the provider and model for logging and audit records.
	Name() string
}

// Config holds provider configuration.
type Config struct {
	Provider          string
	APIKey            string
	BaseURL           string
	Model             string
	Temperature       float64
	MaxTokens         int
	RequestsPerMinute int
	CacheTTL          time.Duration
	Timeout           time.Duration
}
