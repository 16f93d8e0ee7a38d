package ai

import (
	"context"
	"fmt"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
)

// Ensure ConfigValidator implements the interface.
var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// ConfigValidator validates inference configurations against the live endpoint.
type ConfigValidator struct{}

// NewConfigValidator creates a new config validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// ValidateEmbedding checks the endpoint is local, reachable, and has the
// embedding model installed.
func (v *ConfigValidator) ValidateEmbedding(ctx context.Context, ollama domain.OllamaSettings, cfg domain.EmbeddingSettings) error {
	svc, err := CreateEmbeddingService(ollama)
	if err != nil {
		return err
	}
	if err := requireModel(ctx, svc, cfg.Model); err != nil {
		return fmt.Errorf("embedding model: %w", err)
	}
	return nil
}

// ValidateLLM checks the endpoint is local, reachable, and has the
// generation model installed.
func (v *ConfigValidator) ValidateLLM(ctx context.Context, ollama domain.OllamaSettings, cfg domain.LLMSettings) error {
	// The chat adapter has no model listing; the embedding client shares the transport.
	svc, err := CreateEmbeddingService(ollama)
	if err != nil {
		return err
	}
	if err := requireModel(ctx, svc, cfg.Model); err != nil {
		return fmt.Errorf("generation model: %w", err)
	}
	return nil
}
