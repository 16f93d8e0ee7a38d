// Package ollama provides an embedding service adapter using Ollama.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/s-edling/quackdas-sub000/internal/adapters/driven/ollamaclient"
	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
	"github.com/s-edling/quackdas-sub000/internal/metrics"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Config holds configuration for the Ollama embedding service.
type Config struct {
	// BaseURL is the Ollama API base URL, restricted to localhost.
	BaseURL string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RequestsPerSecond throttles embedding requests. Zero means unlimited.
	RequestsPerSecond float64
}

// EmbeddingService generates embeddings using Ollama.
type EmbeddingService struct {
	client  *ollamaclient.Client
	limiter *rate.Limiter
}

// embedRequest is the Ollama API request format.
type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embedResponse is the Ollama API response format.
type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// NewEmbeddingService creates a new Ollama embedding service.
// Non-local base URLs are rejected with NON_LOCAL_ENDPOINT_REJECTED.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	client, err := ollamaclient.New(ollamaclient.Config{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}

	s := &EmbeddingService{client: client}
	if cfg.RequestsPerSecond > 0 {
		burst := int(math.Ceil(cfg.RequestsPerSecond))
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return s, nil
}

// ListModels returns the installed model names.
func (s *EmbeddingService) ListModels(ctx context.Context) ([]string, error) {
	return s.client.ListModels(ctx)
}

// IsReachable reports whether the Ollama server answers.
func (s *EmbeddingService) IsReachable(ctx context.Context) bool {
	return s.client.IsReachable(ctx)
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, model, text string) (vec []float32, err error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	defer func() { metrics.ObserveEmbedding(start, err) }()

	resp, err := s.client.Do(ctx, http.MethodPost, "/api/embeddings", embedRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		if ctx.Err() != nil {
			return nil, ollamaclient.ClassifyTransport(ctx, err)
		}
		return nil, domain.WrapError(domain.CodeInvalidEmbeddingPayload, "decode embedding response", err)
	}

	if embedResp.Error != "" {
		return nil, ollamaclient.ClassifyResponse(http.StatusOK, []byte(embedResp.Error))
	}
	if len(embedResp.Embedding) == 0 {
		return nil, domain.NewError(domain.CodeInvalidEmbeddingPayload,
			fmt.Sprintf("model %q returned an empty embedding", model))
	}

	vec = make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, domain.NewError(domain.CodeInvalidEmbeddingPayload,
				fmt.Sprintf("embedding contains a non-finite value at %d", i))
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

// EmbedMany embeds texts with up to opts.Concurrency workers pulling the
// next index from a shared cursor. Each result is written to its input
// position, so output order never depends on completion order. The first
// error cancels the remaining requests.
func (s *EmbeddingService) EmbedMany(ctx context.Context, texts []string, opts driven.EmbedOptions) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(texts) {
		workers = len(texts)
	}

	results := make([][]float32, len(texts))
	var cursor atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1) - 1)
				if i >= len(texts) {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}

				vec, err := s.Embed(gctx, opts.Model, texts[i])
				if err != nil {
					return fmt.Errorf("embed text %d: %w", i, err)
				}
				results[i] = vec
				if opts.OnEmbedded != nil {
					opts.OnEmbedded(i)
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		// Report the caller's cancellation rather than a worker's derived error
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	dim := len(results[0])
	for i, v := range results {
		if len(v) != dim {
			return nil, domain.NewError(domain.CodeInvalidEmbeddingPayload,
				fmt.Sprintf("text %d embedded with dimension %d, expected %d", i, len(v), dim))
		}
	}
	return results, nil
}
