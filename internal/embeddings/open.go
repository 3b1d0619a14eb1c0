// Package embeddings provides the openai and ollama embedding drivers.
package embeddings

import (
	"fmt"

	"github.com/agentoven/ragjenkins/internal/config"
	"github.com/agentoven/ragjenkins/pkg/contracts"
)

// Open builds the driver selected by cfg.Embedding.Provider.
func Open(cfg *config.Config) (contracts.EmbeddingDriver, error) {
	switch cfg.Embedding.Provider {
	case "openai", "":
		return NewOpenAIDriver(cfg.OpenAI.APIKey, cfg.Embedding.Model, WithOpenAIBaseURL(cfg.OpenAI.BaseURL)), nil
	case "ollama":
		return NewOllamaDriver(cfg.Ollama.URL, cfg.Embedding.Model), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}
