// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// EmbeddingService generates vector embeddings from text using a local
// inference endpoint.
//
// Failures are *domain.Error values with stable codes: unreachable
// endpoint, request timeout, model not found, invalid payload.
type EmbeddingService interface {
	// ListModels returns the names of the installed models.
	ListModels(ctx context.Context) ([]string, error)

	// IsReachable reports whether the endpoint answers.
	IsReachable(ctx context.Context) bool

	// Embed generates a vector embedding for text with the given model.
	Embed(ctx context.Context, model, text string) ([]float32, error)

	// EmbedMany embeds texts with a bounded worker pool.
	// The result preserves input order regardless of completion order.
	EmbedMany(ctx context.Context, texts []string, opts EmbedOptions) ([][]float32, error)
}

// EmbedOptions configures a batch embedding call.
type EmbedOptions struct {
	// Model is the embedding model name.
	Model string

	// Concurrency bounds in-flight requests. Values below 1 mean 1.
	Concurrency int

	// OnEmbedded is called once per completed text, from worker goroutines.
	OnEmbedded func(index int)
}
