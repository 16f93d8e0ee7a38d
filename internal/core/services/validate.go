package services

import (
	"fmt"
	"strings"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// evidence is the set of chunks an answer may cite, with the text quotes
// are checked against. Chunks without resolved text are never evidence.
type evidence map[domain.ChunkRef]string

func newEvidence(chunks []domain.RetrievedChunk) evidence {
	ev := make(evidence, len(chunks))
	for _, c := range chunks {
		if c.Text == "" {
			continue
		}
		ev[c.Ref()] = c.Text
	}
	return ev
}

// validation is the outcome of checking a parsed answer.
type validation struct {
	claims    []domain.Claim
	text      string
	refs      []domain.CitationRef
	citations int
	dropped   int
	notes     string
}

// validateStrict drops citations outside the evidence set and quotes that
// are too long or not verbatim. Claims left without any citation are
// dropped with them.
func validateStrict(p *strictPayload, ev evidence) validation {
	var v validation
	seen := make(map[domain.ChunkRef]bool)

	for _, c := range p.Answer {
		kept := domain.Claim{Claim: c.Claim}

		cited := make(map[domain.ChunkRef]bool)
		for _, ref := range c.Citations {
			if _, ok := ev[ref]; !ok {
				v.dropped++
				continue
			}
			if cited[ref] {
				continue
			}
			cited[ref] = true
			kept.Citations = append(kept.Citations, ref)
		}

		for _, q := range c.Quotes {
			q.Quote = strings.TrimSpace(q.Quote)
			if !validQuote(q, ev) {
				v.dropped++
				continue
			}
			kept.Quotes = append(kept.Quotes, q)
		}

		if len(kept.Citations) == 0 {
			continue
		}
		for ref := range cited {
			seen[ref] = true
		}
		v.claims = append(v.claims, kept)
	}

	v.citations = len(seen)
	v.notes = strings.TrimSpace(p.Notes)
	return v
}

// validQuote reports whether q cites an evidence chunk, is at most
// MaxQuoteWords words and appears verbatim in the chunk text.
func validQuote(q domain.Quote, ev evidence) bool {
	text, ok := ev[q.Ref()]
	if !ok || q.Quote == "" {
		return false
	}
	if len(strings.Fields(q.Quote)) > domain.MaxQuoteWords {
		return false
	}
	return strings.Contains(text, q.Quote)
}

// validateLoose keeps only markers that appear in the text and resolve to
// a source in the evidence set. Markers that do not resolve are removed
// from the text.
func validateLoose(a *looseAnswer, ev evidence) validation {
	var v validation
	keep := make(map[int]bool)
	seen := make(map[domain.ChunkRef]bool)

	for _, n := range markersInText(a.Text) {
		ref, ok := a.Sources[n]
		if !ok {
			v.dropped++
			continue
		}
		if _, ok := ev[ref]; !ok {
			v.dropped++
			continue
		}
		keep[n] = true
		seen[ref] = true
		v.refs = append(v.refs, domain.CitationRef{Marker: n, DocID: ref.DocID, ChunkID: ref.ChunkID})
	}

	v.text = stripMarkers(a.Text, keep)
	v.citations = len(seen)
	v.notes = strings.TrimSpace(a.Notes)
	return v
}

// insufficientGroundingNote explains an answer emptied by the citation floor.
func insufficientGroundingNote(got, want int) string {
	return fmt.Sprintf(
		"Insufficient grounding: %d verified citation(s), at least %d required. "+
			"The sources below may still be relevant.", got, want)
}

// noTextNote explains an answer skipped because no retrieved chunk could
// be resolved to its document text.
func noTextNote(n int) string {
	return fmt.Sprintf(
		"Not grounded: the text of the %d retrieved chunk(s) was not available, "+
			"because the documents were not supplied or changed since indexing. "+
			"The sources below are previews only.", n)
}

// skippedTextNote records chunks left out because their text was unavailable.
func skippedTextNote(n int) string {
	return fmt.Sprintf("%d retrieved chunk(s) without document text were not used.", n)
}

// fallbackNote explains an answer that never passed validation.
func fallbackNote(repairs int) string {
	return fmt.Sprintf(
		"The model did not return a valid answer after %d repair attempt(s). "+
			"Listing the retrieved sources instead.", repairs)
}

// sourceEntries lists retrieved chunks, independent of any model output.
func sourceEntries(chunks []domain.RetrievedChunk) []domain.SourceEntry {
	entries := make([]domain.SourceEntry, 0, len(chunks))
	for _, c := range chunks {
		entries = append(entries, domain.SourceEntry{
			DocID:   c.DocID,
			ChunkID: c.ID,
			Title:   c.Title,
			Preview: c.Preview,
			Score:   c.RerankScore,
		})
	}
	return entries
}
