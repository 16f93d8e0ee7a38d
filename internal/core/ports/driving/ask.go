package driving

import (
	"context"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// AskSink receives incremental output from the ask pipeline.
// Any field may be nil.
type AskSink struct {
	Phase     func(domain.AskPhase)
	Retrieved func([]domain.RetrievedChunk)
	Stream    func(delta string)
}

// AskService answers questions with citation-grounded answers.
type AskService interface {
	// Ask runs the pipeline. Malformed model output never produces an
	// error; it degrades to a fallback answer. Cancellation returns an
	// error matching domain.ErrAskCancelled.
	Ask(ctx context.Context, question string, opts domain.AskOptions, sink AskSink) (*domain.AskAnswer, error)
}
