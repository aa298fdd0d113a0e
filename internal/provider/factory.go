package provider

import (
	"fmt"

	"github.com/katakuxiko/docchat/internal/config"
	"github.com/katakuxiko/docchat/internal/model"
)

// NewEmbedder creates a fresh embedder for cfg.Provider. Callers that index
// more than once should call it per index, since some embedders keep corpus
// state.
func NewEmbedder(cfg config.EmbeddingConfig) (model.Embedder, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimension), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.BaseURL, cfg.Model, bearer(cfg.APIKey), cfg.Dimension), nil
	case "tfidf":
		return NewTFIDFEmbedder(), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// NewLanguageModel creates the chat model for cfg.Provider.
func NewLanguageModel(cfg config.LLMConfig) (model.LanguageModel, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIChat(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Temperature), nil
	case "ollama":
		return NewOllamaChat(cfg.BaseURL, cfg.Model, bearer(cfg.APIKey), cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// bearer drops the LM Studio placeholder key so local Ollama gets no
// Authorization header.
func bearer(key string) string {
	if key == "not-needed" {
		return ""
	}
	return key
}
