package driven

import (
	"context"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// AIConfigValidator validates inference settings before they are saved.
// Implementations check endpoint locality, reachability and that the
// configured models are installed.
type AIConfigValidator interface {
	// ValidateEmbedding checks the endpoint and embedding model.
	ValidateEmbedding(ctx context.Context, ollama domain.OllamaSettings, cfg domain.EmbeddingSettings) error

	// ValidateLLM checks the endpoint and generation model.
	ValidateLLM(ctx context.Context, ollama domain.OllamaSettings, cfg domain.LLMSettings) error
}
