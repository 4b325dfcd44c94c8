package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/koehnden/dragon-lens/internal/engine"
	"github.com/koehnden/dragon-lens/internal/knowledge"
	"github.com/koehnden/dragon-lens/internal/llm"
	"github.com/koehnden/dragon-lens/internal/service"
	"github.com/koehnden/dragon-lens/internal/storage"
)

// openStorage creates the SQLite storage from config, creating the parent
// directory on first use.
func openStorage() (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".local", "share", "dragonlens", "dragonlens.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// newLLMClient builds the completion client from config. Returns nil when no
// provider is configured; every LLM-dependent stage then falls back to its
// keep-as-is behavior.
func newLLMClient() (service.LLMClient, error) {
	provider := viper.GetString("llm.provider")
	if provider == "" {
		slog.Warn("no LLM provider configured, verification and resolution fall back to rule results")
		return nil, nil
	}

	client, err := llm.NewClient(llm.Config{
		Provider:          provider,
		APIKey:            viper.GetString("llm.api_key"),
		BaseURL:           viper.GetString("llm.base_url"),
		Model:             viper.GetString("llm.model"),
		Temperature:       viper.GetFloat64("llm.temperature"),
		MaxTokens:         viper.GetInt("llm.max_tokens"),
		RequestsPerMinute: viper.GetInt("llm.requests_per_minute"),
		CacheTTL:          viper.GetDuration("llm.cache_ttl"),
		Timeout:           viper.GetDuration("llm.timeout"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return client, nil
}

// engineConfig reads the pipeline tunables. Unset keys stay zero so the
// engine applies its documented defaults.
func engineConfig() engine.Config {
	return engine.Config{
		AmbiguityThreshold:    viper.GetFloat64("extraction.ambiguity_threshold"),
		BatchSize:             viper.GetInt("extraction.batch_size"),
		MergeThreshold:        viper.GetFloat64("consolidation.merge_threshold"),
		AutoValidateThreshold: viper.GetInt("consolidation.auto_validate_threshold"),
		ProximityShare:        viper.GetFloat64("mapping.proximity_share"),
		ProximityMinCount:     viper.GetInt("mapping.proximity_min_count"),
		RemoteConcurrency:     viper.GetInt64("extraction.remote_concurrency"),
		LocalConcurrency:      viper.GetInt64("extraction.local_concurrency"),
	}
}

// newEngine wires storage, the LLM client, and the knowledge base together.
func newEngine(store *storage.SQLiteStorage) (*engine.Engine, error) {
	client, err := newLLMClient()
	if err != nil {
		return nil, err
	}
	return engine.New(store, client, knowledge.NewService(store), engineConfig()), nil
}
