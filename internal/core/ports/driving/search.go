package driving

import (
	"context"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// SearchService provides similarity search to external actors.
type SearchService interface {
	// Search embeds query, ranks stored chunks and returns the top results.
	Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.RetrievedChunk, error)
}
