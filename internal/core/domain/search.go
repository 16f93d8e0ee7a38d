package domain

// SearchOptions configures a similarity search.
type SearchOptions struct {
	// TopK is the number of results returned after reranking.
	TopK int

	// CandidateK is the number of semantic candidates passed to the reranker.
	CandidateK int

	// ModelName overrides the active embedding model.
	ModelName string

	// Weights overrides the rerank weighting. Zero value means defaults.
	Weights RerankWeights

	// Lookup resolves current document content for slicing chunk text.
	// Hits whose document it cannot resolve are dropped. When nil, Text
	// is left empty.
	Lookup DocumentLookup

	// KeepUnresolved keeps hits whose document Lookup cannot resolve,
	// with Text left empty.
	KeepUnresolved bool
}

// DocumentLookup returns the current content of a document.
type DocumentLookup func(docID string) (Document, bool)

// LookupFromDocuments builds a DocumentLookup over a document slice.
func LookupFromDocuments(docs []Document) DocumentLookup {
	byID := make(map[string]Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	return func(id string) (Document, bool) {
		d, ok := byID[id]
		return d, ok
	}
}

// ChainLookups returns a lookup that tries each non-nil lookup in order.
// It returns nil when none are given.
func ChainLookups(lookups ...DocumentLookup) DocumentLookup {
	var chain []DocumentLookup
	for _, l := range lookups {
		if l != nil {
			chain = append(chain, l)
		}
	}
	if len(chain) == 0 {
		return nil
	}
	return func(id string) (Document, bool) {
		for _, l := range chain {
			if d, ok := l(id); ok {
				return d, true
			}
		}
		return Document{}, false
	}
}

// RerankWeights weights the signals combined into the final score.
// The values are tunable; semantic must carry the largest weight.
type RerankWeights struct {
	Semantic float64
	Coverage float64
	Density  float64
	Phrase   float64
}

// DefaultRerankWeights returns the default weighting.
func DefaultRerankWeights() RerankWeights {
	return RerankWeights{Semantic: 0.65, Coverage: 0.25, Density: 0.08, Phrase: 0.02}
}

// IsZero reports whether no weight is set.
func (w RerankWeights) IsZero() bool {
	return w == RerankWeights{}
}

// SemanticDominant reports whether the semantic weight exceeds every lexical weight.
func (w RerankWeights) SemanticDominant() bool {
	return w.Semantic > w.Coverage && w.Semantic > w.Density && w.Semantic > w.Phrase
}

// LexicalSignals are the per-chunk lexical features used by the reranker.
type LexicalSignals struct {
	Coverage float64
	Density  float64
	Phrase   float64
}

// RetrievedChunk is a query-time search hit.
type RetrievedChunk struct {
	StoredChunk

	// Title is the owning document's title, when known.
	Title string

	// Score is the raw cosine similarity in [-1, 1].
	Score float64

	// RerankScore is the combined final score.
	RerankScore float64

	// Signals are the lexical features that went into RerankScore.
	Signals LexicalSignals

	// Text is sliced from the current document content, not from storage.
	// It is empty when the document was not supplied or has changed since
	// the chunk was indexed.
	Text string
}

// Ref returns the chunk's citation reference.
func (r RetrievedChunk) Ref() ChunkRef {
	return ChunkRef{DocID: r.DocID, ChunkID: r.ID}
}

// ChunkRef identifies a chunk for citation.
type ChunkRef struct {
	DocID   string `json:"docId"`
	ChunkID string `json:"chunkId"`
}
