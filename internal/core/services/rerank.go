package services

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// minDensityTokens is the smallest denominator used for density, so very
// short chunks cannot score a perfect density from a single match.
const minDensityTokens = 8

// minPhraseChars is the shortest normalised query eligible for a phrase match.
const minPhraseChars = 6

// CosineSimilarity returns the cosine of the angle between a and b in
// [-1, 1]. Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim))
}

// normalizeText lowercases text, replaces every rune that is not a letter
// or digit with a space and collapses runs of whitespace.
func normalizeText(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

// Tokenize splits normalised text into tokens, dropping single-character tokens.
func Tokenize(text string) []string {
	fields := strings.Fields(normalizeText(text))
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// LexicalSignals computes coverage, density and phrase signals of text
// against query.
func LexicalSignals(query, text string) domain.LexicalSignals {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return domain.LexicalSignals{}
	}

	wanted := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		wanted[t] = true
	}

	chunkTokens := Tokenize(text)
	present := make(map[string]bool)
	hits := 0
	for _, t := range chunkTokens {
		if wanted[t] {
			present[t] = true
			hits++
		}
	}

	var sig domain.LexicalSignals
	sig.Coverage = float64(len(present)) / float64(len(wanted))
	sig.Density = float64(hits) / float64(max(minDensityTokens, len(chunkTokens)))

	phrase := normalizeText(query)
	if len(phrase) >= minPhraseChars && strings.Contains(normalizeText(text), phrase) {
		sig.Phrase = 1
	}
	return sig
}

// CombinedScore mixes a raw cosine similarity with lexical signals.
// The semantic score is first mapped from [-1, 1] to [0, 1].
func CombinedScore(semantic float64, sig domain.LexicalSignals, w domain.RerankWeights) float64 {
	norm := math.Max(0, math.Min(1, (semantic+1)/2))
	return w.Semantic*norm +
		w.Coverage*sig.Coverage +
		w.Density*sig.Density +
		w.Phrase*sig.Phrase
}

// Rerank scores hits against query and sorts them by combined score,
// breaking ties by semantic score. Hit text is used for the lexical
// signals, falling back to the preview when text is empty.
func Rerank(query string, hits []domain.RetrievedChunk, w domain.RerankWeights) []domain.RetrievedChunk {
	if w.IsZero() {
		w = domain.DefaultRerankWeights()
	}

	for i := range hits {
		text := hits[i].Text
		if text == "" {
			text = hits[i].Preview
		}
		hits[i].Signals = LexicalSignals(query, text)
		hits[i].RerankScore = CombinedScore(hits[i].Score, hits[i].Signals, w)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].RerankScore != hits[j].RerankScore {
			return hits[i].RerankScore > hits[j].RerankScore
		}
		return hits[i].Score > hits[j].Score
	})
	return hits
}
