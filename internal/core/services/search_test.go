package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s-edling/quackdas-sub000/internal/adapters/driven/storage/memory"
	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

func searchDocs() []domain.Document {
	return []domain.Document{
		{ID: "ducks", Title: "Ducks", Content: "Wild ducks migrate south every winter to find open water."},
		{ID: "geese", Title: "Geese", Content: "Geese fly in a V formation and honk loudly while they migrate."},
		{ID: "bread", Title: "Bread", Content: "Sourdough bread needs a lively starter and a long proof."},
	}
}

// newIndexedSearch indexes searchDocs into a memory store and returns a
// search service over it.
func newIndexedSearch(t *testing.T) (*SearchService, *memory.VectorStore, *mockEmbedder) {
	t.Helper()
	store := memory.NewVectorStore()
	embedder := &mockEmbedder{}

	_, err := NewIndexService(store, store, embedder).Run(context.Background(), searchDocs(), indexOpts(), nil)
	require.NoError(t, err)

	settings := domain.DefaultAppSettings().Search
	return NewSearchService(store, store, embedder, settings, ""), store, embedder
}

func TestSearchService_Search_ReturnsAllChunksRanked(t *testing.T) {
	svc, _, _ := newIndexedSearch(t)

	results, err := svc.Search(context.Background(), "wild ducks migrate", domain.SearchOptions{
		Lookup: domain.LookupFromDocuments(searchDocs()),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "ducks", results[0].DocID)
	assert.Equal(t, "Ducks", results[0].Title)
	assert.Equal(t, searchDocs()[0].Content, results[0].Text)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].RerankScore, results[i].RerankScore)
	}
	for _, r := range results {
		assert.Nil(t, r.Vector)
		assert.GreaterOrEqual(t, r.Score, -1.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestSearchService_Search_TopKAndCandidateK(t *testing.T) {
	svc, _, _ := newIndexedSearch(t)
	ctx := context.Background()

	results, err := svc.Search(ctx, "ducks", domain.SearchOptions{TopK: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// candidateK is raised to topK
	results, err = svc.Search(ctx, "ducks", domain.SearchOptions{TopK: 3, CandidateK: 1})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearchService_Search_DropsUnresolvedDocuments(t *testing.T) {
	svc, _, _ := newIndexedSearch(t)

	results, err := svc.Search(context.Background(), "migrate", domain.SearchOptions{
		Lookup: domain.LookupFromDocuments(searchDocs()[:1]),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ducks", results[0].DocID)
}

func TestSearchService_Search_SlicesCurrentContent(t *testing.T) {
	svc, _, _ := newIndexedSearch(t)

	docs := searchDocs()
	docs[0].Content = "Wild ducks\r\nmigrate south every winter to find open water."

	results, err := svc.Search(context.Background(), "ducks", domain.SearchOptions{
		TopK:   1,
		Lookup: domain.LookupFromDocuments(docs),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotContains(t, results[0].Text, "\r")
}

func TestSearchService_Search_WithoutLookupLeavesTextEmpty(t *testing.T) {
	svc, _, _ := newIndexedSearch(t)

	results, err := svc.Search(context.Background(), "sourdough bread", domain.SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "bread", results[0].DocID)
	assert.Empty(t, results[0].Text)
	assert.Greater(t, results[0].Signals.Coverage, 0.0, "preview feeds the lexical signals")
}

func TestSearchService_Search_EmptyQuery(t *testing.T) {
	svc, _, embedder := newIndexedSearch(t)
	before := len(embedder.embedded())

	for _, q := range []string{"", "   \n"} {
		results, err := svc.Search(context.Background(), q, domain.SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, results)
	}
	assert.Len(t, embedder.embedded(), before)
}

func TestSearchService_Search_SingleEmbeddingCall(t *testing.T) {
	svc, _, embedder := newIndexedSearch(t)
	before := len(embedder.embedded())

	_, err := svc.Search(context.Background(), "geese formation", domain.SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, embedder.embedded(), before+1)
}

func TestSearchService_Search_ModelResolution(t *testing.T) {
	svc, store, _ := newIndexedSearch(t)
	ctx := context.Background()

	// Unknown explicit model has no vectors
	results, err := svc.Search(ctx, "ducks", domain.SearchOptions{ModelName: "unknown"})
	require.NoError(t, err)
	assert.Empty(t, results)

	// The metadata table names the active model
	results, err = svc.Search(ctx, "ducks", domain.SearchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	// Without metadata the configured default applies
	fresh := memory.NewVectorStore()
	noModel := NewSearchService(fresh, fresh, &mockEmbedder{}, domain.SearchSettings{}, "")
	_, err = noModel.Search(ctx, "ducks", domain.SearchOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	withDefault := NewSearchService(store, nil, &mockEmbedder{}, domain.SearchSettings{}, testModel)
	results, err = withDefault.Search(ctx, "ducks", domain.SearchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSearchService_Search_EmbeddingError(t *testing.T) {
	svc, _, embedder := newIndexedSearch(t)
	embedder.err = domain.NewError(domain.CodeModelNotFound, "model \"x\" not found")

	_, err := svc.Search(context.Background(), "ducks", domain.SearchOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrModelNotFound))
	assert.False(t, domain.Retryable(err))
}

func TestSearchService_Search_NoEmbedder(t *testing.T) {
	store := memory.NewVectorStore()
	svc := NewSearchService(store, store, nil, domain.SearchSettings{}, testModel)
	_, err := svc.Search(context.Background(), "ducks", domain.SearchOptions{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestSearchService_Search_KeepUnresolved(t *testing.T) {
	svc, _, _ := newIndexedSearch(t)

	results, err := svc.Search(context.Background(), "migrate", domain.SearchOptions{
		Lookup:         domain.LookupFromDocuments(searchDocs()[:1]),
		KeepUnresolved: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		if r.DocID == "ducks" {
			assert.Equal(t, searchDocs()[0].Content, r.Text)
		} else {
			assert.Empty(t, r.Text)
		}
	}
}

func TestSearchService_Search_ChangedDocumentLeavesTextEmpty(t *testing.T) {
	svc, _, _ := newIndexedSearch(t)

	docs := searchDocs()
	docs[0].Content = "Tame ducks stay by the pond all year round."

	results, err := svc.Search(context.Background(), "ducks", domain.SearchOptions{
		Lookup: domain.LookupFromDocuments(docs),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		if r.DocID == "ducks" {
			assert.Empty(t, r.Text, "offsets point into the indexed version")
			assert.Equal(t, "Ducks", r.Title)
		} else {
			assert.NotEmpty(t, r.Text)
		}
	}
}
