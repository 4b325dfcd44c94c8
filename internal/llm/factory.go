package llm

import (
	"fmt"
	"strings"
)

// Provider base URLs for the OpenAI-compatible endpoints we support.
const (
	qwenBaseURL     = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	deepseekBaseURL = "https://api.deepseek.com/v1"
)

// NewClient creates an LLM client based on the provided configuration.
// Caching is applied when cfg.CacheTTL is set.
func NewClient(cfg Config) (Client, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err = newOpenAIClient(cfg)
	case "qwen":
		if cfg.BaseURL == "" {
			cfg.BaseURL = qwenBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = "qwen-plus"
		}
		client, err = newOpenAIClient(cfg)
	case "deepseek":
		if cfg.BaseURL == "" {
			cfg.BaseURL = deepseekBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = "deepseek-chat"
		}
		client, err = newOpenAIClient(cfg)
	case "anthropic":
		client, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewCachingClient(client, cfg.CacheTTL), nil
}
