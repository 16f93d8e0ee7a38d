// Package ai provides factory functions for creating inference service adapters.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	ollamaembed "github.com/s-edling/quackdas-sub000/internal/adapters/driven/embedding/ollama"
	ollamallm "github.com/s-edling/quackdas-sub000/internal/adapters/driven/llm/ollama"
	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// CreateEmbeddingService creates the Ollama embedding service.
// The endpoint must be local.
func CreateEmbeddingService(ollama domain.OllamaSettings) (driven.EmbeddingService, error) {
	svc, err := ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:           ollama.BaseURL,
		Timeout:           ollama.Timeout,
		RequestsPerSecond: ollama.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// CreateChatService creates the Ollama chat service.
// The endpoint must be local.
func CreateChatService(ollama domain.OllamaSettings) (driven.ChatService, error) {
	svc, err := ollamallm.NewChatService(ollamallm.Config{
		BaseURL: ollama.BaseURL,
		Timeout: ollama.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// CreateAndValidateEmbeddingService creates an embedding service and checks
// that the endpoint answers and the model is installed.
func CreateAndValidateEmbeddingService(
	ctx context.Context,
	ollama domain.OllamaSettings,
	cfg domain.EmbeddingSettings,
) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(ollama)
	if err != nil {
		return nil, err
	}
	if err := requireModel(ctx, svc, cfg.Model); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	return svc, nil
}

// requireModel lists installed models and fails with MODEL_NOT_FOUND when
// name is absent.
func requireModel(ctx context.Context, lister interface {
	ListModels(context.Context) ([]string, error)
}, name string) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	models, err := lister.ListModels(ctx)
	if err != nil {
		return err
	}
	if !ModelInstalled(models, name) {
		return domain.NewError(domain.CodeModelNotFound,
			fmt.Sprintf("model %q is not installed, run 'ollama pull %s'", name, name))
	}
	return nil
}

// ModelInstalled reports whether name is among models. A name without a
// tag matches its ":latest" variant.
func ModelInstalled(models []string, name string) bool {
	if name == "" {
		return false
	}
	for _, m := range models {
		if m == name {
			return true
		}
		if !strings.Contains(name, ":") && m == name+":latest" {
			return true
		}
	}
	return false
}
