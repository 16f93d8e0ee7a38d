package driving

import (
	"context"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// JobRequest is the payload of a job start request. Documents and
// IndexOptions apply to index jobs; Question and AskOptions to ask jobs.
type JobRequest struct {
	Kind         domain.JobKind
	Documents    []domain.Document
	IndexOptions domain.IndexOptions
	Question     string
	AskOptions   domain.AskOptions
}

// JobHandle is a started job. Events delivers progress and exactly one
// terminal event, then closes.
type JobHandle struct {
	ID     string
	Kind   domain.JobKind
	Events <-chan domain.JobEvent
}

// JobManager runs indexing and ask jobs in the background, one of each
// kind per session.
type JobManager interface {
	// Start launches a job. It fails with domain.ErrJobRunning when a job
	// of the same kind is active for the session.
	Start(ctx context.Context, sessionID string, req JobRequest) (*JobHandle, error)

	// Cancel asks the session's job of kind to stop. It fails with
	// domain.ErrNoJob when there is none.
	Cancel(sessionID string, kind domain.JobKind) error

	// Active reports the status of the session's job of kind, if any.
	Active(sessionID string, kind domain.JobKind) (domain.JobStatus, bool)
}
