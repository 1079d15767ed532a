package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/adapters/llm/anthropic"
	"github.com/conduitci/conduit/pkg/ports"
)

// Config holds summarizer configuration
type Config struct {
	Provider string
	APIKey   string
	Model    string
	Logger   *zap.Logger
}

// NewSummarizer creates a run summarizer based on provider
func NewSummarizer(cfg *Config) (ports.RunSummarizer, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewSummarizer(cfg.APIKey, cfg.Model, cfg.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
