package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRerankWeights(t *testing.T) {
	w := DefaultRerankWeights()
	assert.False(t, w.IsZero())
	assert.True(t, w.SemanticDominant())
	assert.InDelta(t, 1.0, w.Semantic+w.Coverage+w.Density+w.Phrase, 1e-9)
}

func TestRerankWeights_SemanticDominant(t *testing.T) {
	assert.False(t, RerankWeights{Semantic: 0.2, Coverage: 0.5}.SemanticDominant())
	assert.True(t, RerankWeights{Semantic: 0.9, Coverage: 0.1}.SemanticDominant())
}

func TestRetrievedChunk_Ref(t *testing.T) {
	r := RetrievedChunk{StoredChunk: StoredChunk{Chunk: Chunk{DocID: "d1", ID: "d1::2"}}}
	assert.Equal(t, ChunkRef{DocID: "d1", ChunkID: "d1::2"}, r.Ref())
}

func TestLookupFromDocuments(t *testing.T) {
	lookup := LookupFromDocuments([]Document{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}})

	doc, ok := lookup("b")
	assert.True(t, ok)
	assert.Equal(t, "B", doc.Title)

	_, ok = lookup("missing")
	assert.False(t, ok)
}

func TestChainLookups(t *testing.T) {
	first := LookupFromDocuments([]Document{{ID: "a", Content: "first"}})
	second := LookupFromDocuments([]Document{{ID: "a", Content: "second"}, {ID: "b", Content: "b"}})

	assert.Nil(t, ChainLookups(nil, nil))

	lookup := ChainLookups(nil, first, second)
	d, ok := lookup("a")
	require.True(t, ok)
	assert.Equal(t, "first", d.Content)
	d, ok = lookup("b")
	require.True(t, ok)
	assert.Equal(t, "b", d.Content)
	_, ok = lookup("c")
	assert.False(t, ok)
}
