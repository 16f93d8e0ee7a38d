package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns search results", func(t *testing.T) {
		chunk := domain.RetrievedChunk{Title: "Ducks", Score: 0.91, RerankScore: 0.87}
		chunk.DocID = "/notes/ducks.md"
		chunk.ID = "/notes/ducks.md::0"
		chunk.Preview = "Ducks migrate south every winter."
		mockSearch := &mockSearchService{results: []domain.RetrievedChunk{chunk}}

		server, err := NewServer(&Ports{Search: mockSearch})
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "ducks", TopK: 3})

		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
		require.Len(t, output.Results, 1)
		assert.Equal(t, "/notes/ducks.md", output.Results[0].DocumentID)
		assert.Equal(t, "/notes/ducks.md::0", output.Results[0].ChunkID)
		assert.Equal(t, "Ducks", output.Results[0].Title)
		assert.Equal(t, 0.91, output.Results[0].Score)
		assert.Equal(t, 0.87, output.Results[0].RerankScore)
		assert.Equal(t, "Ducks migrate south every winter.", output.Results[0].Preview)
		assert.Equal(t, 3, mockSearch.lastOpts.TopK)
	})

	t.Run("resolved text wins over preview", func(t *testing.T) {
		chunk := domain.RetrievedChunk{Text: "full text"}
		chunk.Preview = "preview"
		server, err := NewServer(&Ports{Search: &mockSearchService{results: []domain.RetrievedChunk{chunk}}})
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, "full text", output.Results[0].Preview)
	})

	t.Run("resolves text without dropping hits", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		lookup := domain.LookupFromDocuments(nil)
		server, err := NewServer(&Ports{Search: mockSearch, Lookup: lookup})
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "q"})
		require.NoError(t, err)
		assert.NotNil(t, mockSearch.lastOpts.Lookup)
		assert.True(t, mockSearch.lastOpts.KeepUnresolved)
	})

	t.Run("empty results", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}})
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.Empty(t, output.Results)
	})

	t.Run("returns error on search failure", func(t *testing.T) {
		mockSearch := &mockSearchService{err: domain.ErrServiceUnreachable}
		server, err := NewServer(&Ports{Search: mockSearch})
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		assert.ErrorIs(t, err, domain.ErrServiceUnreachable)
	})
}

func TestServer_handleAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("returns verified answer", func(t *testing.T) {
		answer := &domain.AskAnswer{
			Mode: domain.AskModeStrict,
			Claims: []domain.Claim{{
				Claim:     "Ducks migrate south.",
				Citations: []domain.ChunkRef{{DocID: "ducks", ChunkID: "ducks::0"}},
			}},
			Repairs: 1,
		}
		asker := &mockAsker{answer: answer}
		jobs, history := newJobs(asker)
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Jobs: jobs, History: history})
		require.NoError(t, err)

		_, output, err := server.handleAsk(ctx, nil, AskInput{Question: "Where do ducks go?", Mode: "STRICT", Language: "Swedish"})

		require.NoError(t, err)
		assert.Equal(t, "strict", output.Mode)
		assert.Equal(t, answer.Claims, output.Claims)
		assert.Equal(t, 1, output.Repairs)
		assert.False(t, output.Fallback)
		assert.Equal(t, domain.AskModeStrict, asker.lastOpts.Mode)
		assert.Equal(t, "Swedish", asker.lastOpts.Language)

		jobs.Wait()
		records, err := history.History(ctx, domain.JobKindAsk, 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, domain.JobDone, records[0].Status)
	})

	t.Run("forwards the document lookup", func(t *testing.T) {
		asker := &mockAsker{answer: &domain.AskAnswer{Mode: domain.AskModeStrict}}
		jobs, _ := newJobs(asker)
		lookup := domain.LookupFromDocuments([]domain.Document{{ID: "ducks", Content: "Ducks migrate."}})
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Jobs: jobs, Lookup: lookup})
		require.NoError(t, err)

		_, _, err = server.handleAsk(ctx, nil, AskInput{Question: "q"})
		require.NoError(t, err)

		require.NotNil(t, asker.lastOpts.Lookup)
		doc, ok := asker.lastOpts.Lookup("ducks")
		require.True(t, ok)
		assert.Equal(t, "Ducks migrate.", doc.Content)
	})

	t.Run("loose answer", func(t *testing.T) {
		answer := &domain.AskAnswer{
			Mode:         domain.AskModeLoose,
			AnswerText:   "Ducks migrate [1].",
			CitationRefs: []domain.CitationRef{{Marker: 1, DocID: "ducks", ChunkID: "ducks::0"}},
		}
		jobs, _ := newJobs(&mockAsker{answer: answer})
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Jobs: jobs})
		require.NoError(t, err)

		_, output, err := server.handleAsk(ctx, nil, AskInput{Question: "q", Mode: "loose"})

		require.NoError(t, err)
		assert.Equal(t, "Ducks migrate [1].", output.Text)
		assert.Equal(t, answer.CitationRefs, output.Citations)
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		jobs, _ := newJobs(&mockAsker{})
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Jobs: jobs})
		require.NoError(t, err)

		_, _, err = server.handleAsk(ctx, nil, AskInput{Question: "q", Mode: "creative"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("surfaces coded errors", func(t *testing.T) {
		jobs, _ := newJobs(&mockAsker{err: domain.ErrModelNotFound})
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Jobs: jobs})
		require.NoError(t, err)

		_, _, err = server.handleAsk(ctx, nil, AskInput{Question: "q"})
		assert.ErrorIs(t, err, domain.ErrModelNotFound)
	})

	t.Run("request cancellation cancels the job", func(t *testing.T) {
		jobs, _ := newJobs(&mockAsker{block: true})
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Jobs: jobs})
		require.NoError(t, err)

		reqCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		_, _, err = server.handleAsk(reqCtx, nil, AskInput{Question: "q"})
		assert.ErrorIs(t, err, domain.ErrAskCancelled)
		assert.Equal(t, domain.CodeAskCancelled, domain.CodeOf(err))
	})

	t.Run("second ask in the same session is rejected", func(t *testing.T) {
		jobs, _ := newJobs(&mockAsker{block: true})
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Jobs: jobs, Session: "s1"})
		require.NoError(t, err)

		reqCtx, cancel := context.WithCancel(ctx)
		errs := make(chan error, 1)
		go func() {
			_, _, err := server.handleAsk(reqCtx, nil, AskInput{Question: "first"})
			errs <- err
		}()

		require.Eventually(t, func() bool {
			_, ok := jobs.Active("s1", domain.JobKindAsk)
			return ok
		}, 2*time.Second, 5*time.Millisecond)

		_, _, err = server.handleAsk(ctx, nil, AskInput{Question: "second"})
		assert.ErrorIs(t, err, domain.ErrJobRunning)

		cancel()
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, domain.ErrAskCancelled)
		case <-time.After(5 * time.Second):
			t.Fatal("first ask did not finish")
		}
	})
}

func TestServer_handleIndexStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("returns status", func(t *testing.T) {
		updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		indexer := &mockIndexer{status: &domain.IndexStatus{
			Documents:      3,
			Chunks:         12,
			EmbeddedChunks: 10,
			ActiveModel:    "nomic-embed-text",
			Models:         map[string]int{"nomic-embed-text": 10},
			LastUpdated:    updated,
		}}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Indexer: indexer})
		require.NoError(t, err)

		_, output, err := server.handleIndexStatus(ctx, nil, IndexStatusInput{})

		require.NoError(t, err)
		assert.Equal(t, 3, output.Documents)
		assert.Equal(t, 12, output.Chunks)
		assert.Equal(t, 10, output.EmbeddedChunks)
		assert.Equal(t, "nomic-embed-text", output.ActiveModel)
		assert.Equal(t, "2026-03-01T12:00:00Z", output.LastUpdated)
	})

	t.Run("empty index", func(t *testing.T) {
		server, err := NewServer(&Ports{
			Search:  &mockSearchService{},
			Indexer: &mockIndexer{status: &domain.IndexStatus{}},
		})
		require.NoError(t, err)

		_, output, err := server.handleIndexStatus(ctx, nil, IndexStatusInput{})

		require.NoError(t, err)
		assert.NotNil(t, output.Models)
		assert.Empty(t, output.LastUpdated)
	})

	t.Run("returns error", func(t *testing.T) {
		server, err := NewServer(&Ports{
			Search:  &mockSearchService{},
			Indexer: &mockIndexer{err: errors.New("disk full")},
		})
		require.NoError(t, err)

		_, _, err = server.handleIndexStatus(ctx, nil, IndexStatusInput{})
		assert.EqualError(t, err, "disk full")
	})
}
