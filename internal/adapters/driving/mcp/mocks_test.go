package mcp

import (
	"context"
	"time"

	"github.com/s-edling/quackdas-sub000/internal/adapters/driven/storage/memory"
	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driving"
	"github.com/s-edling/quackdas-sub000/internal/core/services"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results  []domain.RetrievedChunk
	err      error
	lastOpts domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context,
	_ string,
	opts domain.SearchOptions,
) ([]domain.RetrievedChunk, error) {
	m.lastOpts = opts
	return m.results, m.err
}

// mockIndexer is a mock implementation of driving.Indexer.
type mockIndexer struct {
	status *domain.IndexStatus
	err    error
}

func (m *mockIndexer) Run(
	_ context.Context, _ []domain.Document, _ domain.IndexOptions, _ func(domain.Progress),
) (*domain.IndexSummary, error) {
	return &domain.IndexSummary{}, m.err
}

func (m *mockIndexer) Status(_ context.Context) (*domain.IndexStatus, error) {
	return m.status, m.err
}

// mockAsker is a mock implementation of driving.AskService. When block is
// set it waits for cancellation.
type mockAsker struct {
	answer   *domain.AskAnswer
	err      error
	block    bool
	lastOpts domain.AskOptions
}

func (m *mockAsker) Ask(
	ctx context.Context, _ string, opts domain.AskOptions, sink driving.AskSink,
) (*domain.AskAnswer, error) {
	m.lastOpts = opts
	if sink.Phase != nil {
		sink.Phase(domain.PhaseGenerating)
	}
	if m.block {
		<-ctx.Done()
		return nil, domain.WrapError(domain.CodeAskCancelled, "ask cancelled", ctx.Err())
	}
	return m.answer, m.err
}

func newJobs(asker driving.AskService) (*services.JobManager, *memory.JobHistoryStore) {
	history := memory.NewJobHistoryStore()
	jobs := services.NewJobManager(&mockIndexer{}, asker, history, domain.JobSettings{CancelGrace: time.Second})
	return jobs, history
}
