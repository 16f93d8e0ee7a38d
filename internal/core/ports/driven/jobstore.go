package driven

import (
	"context"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// JobHistoryStore persists the outcome of finished jobs.
type JobHistoryStore interface {
	// Record stores a finished job.
	Record(ctx context.Context, rec domain.JobRecord) error

	// History returns recent records, most recent first.
	// An empty kind returns records of every kind.
	History(ctx context.Context, kind domain.JobKind, limit int) ([]domain.JobRecord, error)

	// Prune keeps the most recent keep records per kind.
	Prune(ctx context.Context, keep int) error
}
