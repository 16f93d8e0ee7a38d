package cli

import (
	"context"
	"sync"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driving"
)

type mockModels struct {
	models []string
	err    error
}

func (m *mockModels) ListModels(_ context.Context) ([]string, error) {
	return m.models, m.err
}

func (m *mockModels) IsReachable(_ context.Context) bool {
	return m.err == nil
}

// mockIndexer records its inputs. run, when set, replaces the default
// behaviour of returning summary.
type mockIndexer struct {
	mu      sync.Mutex
	run     func(ctx context.Context, progress func(domain.Progress)) (*domain.IndexSummary, error)
	summary *domain.IndexSummary
	status  *domain.IndexStatus
	err     error
	docs    []domain.Document
	opts    domain.IndexOptions
}

func (m *mockIndexer) Run(
	ctx context.Context, docs []domain.Document, opts domain.IndexOptions, progress func(domain.Progress),
) (*domain.IndexSummary, error) {
	m.mu.Lock()
	m.docs = docs
	m.opts = opts
	m.mu.Unlock()
	if m.run != nil {
		return m.run(ctx, progress)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

func (m *mockIndexer) Status(_ context.Context) (*domain.IndexStatus, error) {
	return m.status, m.err
}

func (m *mockIndexer) received() ([]domain.Document, domain.IndexOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs, m.opts
}

type mockSearch struct {
	results   []domain.RetrievedChunk
	err       error
	lastQuery string
	lastOpts  domain.SearchOptions
}

func (m *mockSearch) Search(_ context.Context, query string, opts domain.SearchOptions) ([]domain.RetrievedChunk, error) {
	m.lastQuery = query
	m.lastOpts = opts
	return m.results, m.err
}

// mockAsker replays retrieved chunks and stream deltas through the sink
// before returning answer. When block is set it waits for cancellation.
type mockAsker struct {
	mu        sync.Mutex
	answer    *domain.AskAnswer
	err       error
	block     bool
	retrieved []domain.RetrievedChunk
	stream    []string
	question  string
	opts      domain.AskOptions
}

func (m *mockAsker) Ask(
	ctx context.Context, question string, opts domain.AskOptions, sink driving.AskSink,
) (*domain.AskAnswer, error) {
	m.mu.Lock()
	m.question = question
	m.opts = opts
	m.mu.Unlock()

	sink.Phase(domain.PhaseRetrieving)
	if m.retrieved != nil {
		sink.Retrieved(m.retrieved)
	}
	sink.Phase(domain.PhaseGenerating)
	for _, delta := range m.stream {
		sink.Stream(delta)
	}
	if m.block {
		<-ctx.Done()
		return nil, domain.WrapError(domain.CodeAskCancelled, "ask cancelled", ctx.Err())
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.answer, nil
}

func (m *mockAsker) received() (string, domain.AskOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.question, m.opts
}
