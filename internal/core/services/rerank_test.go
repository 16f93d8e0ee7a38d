package services

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercases", "Duck POND", []string{"duck", "pond"}},
		{"strips punctuation", "ducks, geese; swans!", []string{"ducks", "geese", "swans"}},
		{"drops single characters", "a b cd e fg", []string{"cd", "fg"}},
		{"keeps digits", "route 66 in 1999", []string{"route", "66", "in", "1999"}},
		{"collapses whitespace", "  many\n\n\tspaces  ", []string{"many", "spaces"}},
		{"unicode letters", "Åsa träffade Öberg", []string{"åsa", "träffade", "öberg"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-2, 0.5, 4}

	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
	assert.InDelta(t, CosineSimilarity(a, b), CosineSimilarity(b, a), 1e-12)
	assert.InDelta(t, -1.0, CosineSimilarity(a, []float32{-1, -2, -3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-12)

	assert.Equal(t, 0.0, CosineSimilarity(a, []float32{1, 2}), "mismatched lengths")
	assert.Equal(t, 0.0, CosineSimilarity(a, []float32{0, 0, 0}), "zero vector")
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestCosineSimilarity_Bounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		a := make([]float32, 16)
		b := make([]float32, 16)
		for j := range a {
			a[j] = rng.Float32()*2 - 1
			b[j] = rng.Float32()*2 - 1
		}
		sim := CosineSimilarity(a, b)
		require.GreaterOrEqual(t, sim, -1.0)
		require.LessOrEqual(t, sim, 1.0)
		require.InDelta(t, sim, CosineSimilarity(b, a), 1e-12)
	}
}

func TestLexicalSignals(t *testing.T) {
	t.Run("coverage counts distinct query tokens", func(t *testing.T) {
		sig := LexicalSignals("duck pond winter", "The duck left the pond.")
		assert.InDelta(t, 2.0/3.0, sig.Coverage, 1e-9)
	})

	t.Run("density has a floor of eight tokens", func(t *testing.T) {
		sig := LexicalSignals("duck", "duck duck")
		assert.InDelta(t, 2.0/8.0, sig.Density, 1e-9)

		long := LexicalSignals("duck", "duck one two three four five six seven eight nine")
		assert.InDelta(t, 1.0/10.0, long.Density, 1e-9)
	})

	t.Run("phrase requires verbatim normalised match", func(t *testing.T) {
		assert.Equal(t, 1.0, LexicalSignals("Mallard ducks", "Many MALLARD, ducks rested.").Phrase)
		assert.Equal(t, 0.0, LexicalSignals("mallard ducks", "ducks and a mallard").Phrase)
	})

	t.Run("phrase ignores short queries", func(t *testing.T) {
		assert.Equal(t, 0.0, LexicalSignals("duck", "a duck swam").Phrase)
	})

	t.Run("query without tokens", func(t *testing.T) {
		assert.Equal(t, domain.LexicalSignals{}, LexicalSignals("? !", "anything"))
	})
}

func TestCombinedScore_MonotonicInSemantic(t *testing.T) {
	w := domain.DefaultRerankWeights()
	sig := domain.LexicalSignals{Coverage: 0.5, Density: 0.2, Phrase: 1}

	prev := CombinedScore(-1, sig, w)
	for s := -0.9; s <= 1.0; s += 0.1 {
		cur := CombinedScore(s, sig, w)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestCombinedScore_NormalisesSemantic(t *testing.T) {
	w := domain.RerankWeights{Semantic: 1}
	assert.InDelta(t, 0.0, CombinedScore(-1, domain.LexicalSignals{}, w), 1e-12)
	assert.InDelta(t, 0.5, CombinedScore(0, domain.LexicalSignals{}, w), 1e-12)
	assert.InDelta(t, 1.0, CombinedScore(1, domain.LexicalSignals{}, w), 1e-12)
}

func TestDefaultRerankWeights_SemanticDominates(t *testing.T) {
	assert.True(t, domain.DefaultRerankWeights().SemanticDominant())
}

func TestRerank_OrdersByCombinedScoreWithSemanticTieBreak(t *testing.T) {
	hits := []domain.RetrievedChunk{
		{StoredChunk: storedChunk("a", 0), Score: 0.2, Text: "nothing relevant here"},
		{StoredChunk: storedChunk("b", 0), Score: 0.4, Text: "nothing relevant here"},
		{StoredChunk: storedChunk("c", 0), Score: 0.1, Text: "wild ducks fly south"},
	}

	ranked := Rerank("wild ducks", hits, domain.DefaultRerankWeights())
	require.Len(t, ranked, 3)
	assert.Equal(t, "c", ranked[0].DocID, "lexical match lifts c above a and b")
	assert.Equal(t, "b", ranked[1].DocID)
	assert.Equal(t, "a", ranked[2].DocID)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].RerankScore, ranked[i].RerankScore)
	}

	// Equal combined scores fall back to semantic order
	tied := Rerank("zzz", []domain.RetrievedChunk{
		{StoredChunk: storedChunk("low", 0), Score: 0.1},
		{StoredChunk: storedChunk("high", 0), Score: 0.3},
	}, domain.RerankWeights{Coverage: 1})
	assert.Equal(t, "high", tied[0].DocID)
}

func TestRerank_UsesPreviewWithoutText(t *testing.T) {
	c := storedChunk("a", 0)
	c.Preview = "wild ducks"
	ranked := Rerank("wild ducks", []domain.RetrievedChunk{{StoredChunk: c}}, domain.RerankWeights{})
	assert.Equal(t, 1.0, ranked[0].Signals.Coverage)
}

func storedChunk(docID string, index int) domain.StoredChunk {
	return domain.StoredChunk{Chunk: domain.Chunk{
		DocID: docID,
		ID:    docID + "::" + strconv.Itoa(index),
		Index: index,
	}}
}
