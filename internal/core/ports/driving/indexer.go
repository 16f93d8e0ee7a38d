package driving

import (
	"context"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// Indexer incrementally indexes caller-supplied documents.
type Indexer interface {
	// Run indexes documents in order. Each document commits atomically;
	// documents committed before a failure or cancellation stay committed.
	// Cancellation returns an error matching domain.ErrIndexCancelled.
	Run(ctx context.Context, docs []domain.Document, opts domain.IndexOptions, progress func(domain.Progress)) (*domain.IndexSummary, error)

	// Status summarises the persisted index.
	Status(ctx context.Context) (*domain.IndexStatus, error)
}
