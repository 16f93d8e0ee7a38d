package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driving"
	"github.com/s-edling/quackdas-sub000/internal/logger"
	"github.com/s-edling/quackdas-sub000/internal/postprocessors/chunker"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// SearchService ranks stored chunks against a query: cosine similarity
// over every stored vector of the active model, then a lexical rerank of
// the best candidates.
type SearchService struct {
	store    driven.VectorStore
	meta     driven.MetadataStore
	embedder driven.EmbeddingService
	defaults domain.SearchSettings
	model    string
}

// NewSearchService creates a new search service. defaultModel is used when
// neither the options nor the metadata table name an embedding model.
// The metadata store is optional.
func NewSearchService(
	store driven.VectorStore,
	meta driven.MetadataStore,
	embedder driven.EmbeddingService,
	defaults domain.SearchSettings,
	defaultModel string,
) *SearchService {
	return &SearchService{
		store:    store,
		meta:     meta,
		embedder: embedder,
		defaults: defaults,
		model:    defaultModel,
	}
}

// Search embeds query, ranks stored chunks and returns the top results.
func (s *SearchService) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.RetrievedChunk, error) {
	logger.Section("Search Execution")
	logger.Debug("Query: %q", query)

	// Return empty for empty query
	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("Empty query, returning no results")
		return []domain.RetrievedChunk{}, nil
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	model, err := s.activeModel(ctx, opts.ModelName)
	if err != nil {
		return nil, err
	}
	topK, candidateK := s.limits(opts)
	logger.Debug("Model: %s, topK: %d, candidateK: %d", model, topK, candidateK)

	queryVec, err := s.embedder.Embed(ctx, model, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	stored, err := s.store.GetEmbeddingsForModel(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	logger.Debug("Scoring %d stored chunks", len(stored))

	candidates := make([]domain.RetrievedChunk, 0, len(stored))
	for _, c := range stored {
		if c.Dim != 0 && c.Dim != len(queryVec) {
			continue
		}
		candidates = append(candidates, domain.RetrievedChunk{
			StoredChunk: c,
			Score:       CosineSimilarity(queryVec, c.Vector),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > candidateK {
		candidates = candidates[:candidateK]
	}

	candidates = resolveText(candidates, opts.Lookup, opts.KeepUnresolved)

	weights := opts.Weights
	if weights.IsZero() {
		weights = s.defaults.Weights
	}
	results := Rerank(query, candidates, weights)
	if len(results) > topK {
		results = results[:topK]
	}

	// Vectors are not part of a search result
	for i := range results {
		results[i].Vector = nil
	}

	logger.Info("Final results: %d", len(results))
	return results, nil
}

// activeModel resolves the embedding model: explicit option, then the
// store's metadata, then the configured default.
func (s *SearchService) activeModel(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if s.meta != nil {
		model, ok, err := s.meta.GetMeta(ctx, driven.MetaEmbeddingModel)
		if err != nil {
			return "", fmt.Errorf("get active model: %w", err)
		}
		if ok && model != "" {
			return model, nil
		}
	}
	if s.model == "" {
		return "", fmt.Errorf("%w: no embedding model configured", domain.ErrInvalidInput)
	}
	return s.model, nil
}

// limits returns topK and candidateK with defaults applied.
// candidateK is never below topK.
func (s *SearchService) limits(opts domain.SearchOptions) (int, int) {
	defaults := domain.DefaultAppSettings().Search

	topK := opts.TopK
	if topK <= 0 {
		topK = s.defaults.TopK
	}
	if topK <= 0 {
		topK = defaults.TopK
	}

	candidateK := opts.CandidateK
	if candidateK <= 0 {
		candidateK = s.defaults.CandidateK
	}
	if candidateK <= 0 {
		candidateK = defaults.CandidateK
	}
	return topK, max(candidateK, topK)
}

// resolveText slices each hit's text from the current document content.
// Hits whose document lookup cannot resolve are dropped unless keep is set.
// A slice whose hash no longer matches the indexed chunk is left empty,
// since its offsets point into an older version of the document. With no
// lookup the hits are returned unchanged.
func resolveText(hits []domain.RetrievedChunk, lookup domain.DocumentLookup, keep bool) []domain.RetrievedChunk {
	if lookup == nil {
		return hits
	}

	type resolvedDoc struct {
		text  string
		title string
		found bool
	}
	docs := make(map[string]resolvedDoc)
	resolved := hits[:0]
	for _, h := range hits {
		d, ok := docs[h.DocID]
		if !ok {
			doc, found := lookup(h.DocID)
			d = resolvedDoc{text: chunker.Canonicalize(doc.Content), title: doc.Title, found: found}
			docs[h.DocID] = d
		}
		if !d.found {
			if !keep {
				logger.Debug("Dropping %s: document not supplied", h.ID)
				continue
			}
			resolved = append(resolved, h)
			continue
		}

		text := chunker.Slice(d.text, h.StartChar, h.EndChar)
		if h.TextHash == "" || chunker.Hash(text) == h.TextHash {
			h.Text = text
		} else {
			logger.Debug("Not resolving %s: document changed since indexing", h.ID)
		}
		if d.title != "" {
			h.Title = d.title
		}
		resolved = append(resolved, h)
	}
	return resolved
}
