package domain

// AskMode selects the output contract the generator must follow.
type AskMode string

// Ask modes.
const (
	// AskModeStrict requires a JSON answer with claims, citations and quotes.
	AskModeStrict AskMode = "strict"

	// AskModeLoose accepts free text with [n] markers and a SOURCES block.
	AskModeLoose AskMode = "loose"
)

// IsValid returns true if the mode is recognised.
func (m AskMode) IsValid() bool {
	return m == AskModeStrict || m == AskModeLoose
}

// MaxQuoteWords is the longest quote, in words, a validated answer may carry.
const MaxQuoteWords = 25

// Quote is a verbatim excerpt attributed to a chunk.
type Quote struct {
	DocID   string `json:"docId"`
	ChunkID string `json:"chunkId"`
	Quote   string `json:"quote"`
}

// Ref returns the quoted chunk's reference.
func (q Quote) Ref() ChunkRef {
	return ChunkRef{DocID: q.DocID, ChunkID: q.ChunkID}
}

// Claim is one statement of a strict answer and its evidence.
type Claim struct {
	Claim     string     `json:"claim"`
	Citations []ChunkRef `json:"citations"`
	Quotes    []Quote    `json:"quotes"`
}

// CitationRef maps an inline marker such as [1] to a chunk.
type CitationRef struct {
	Marker  int    `json:"marker"`
	DocID   string `json:"docId"`
	ChunkID string `json:"chunkId"`
}

// Ref returns the referenced chunk.
func (c CitationRef) Ref() ChunkRef {
	return ChunkRef{DocID: c.DocID, ChunkID: c.ChunkID}
}

// SourceEntry is a fallback source listing built from retrieved chunks.
type SourceEntry struct {
	DocID   string  `json:"docId"`
	ChunkID string  `json:"chunkId"`
	Title   string  `json:"title,omitempty"`
	Preview string  `json:"preview,omitempty"`
	Score   float64 `json:"score"`
}

// AskAnswer is the result of the ask pipeline. Exactly one of the strict
// (Claims) or loose (AnswerText/CitationRefs) shapes is populated, by Mode.
type AskAnswer struct {
	Mode AskMode `json:"mode"`

	// Claims holds the strict answer.
	Claims []Claim `json:"answer,omitempty"`

	// AnswerText and CitationRefs hold the loose answer.
	AnswerText   string        `json:"answerText,omitempty"`
	CitationRefs []CitationRef `json:"citationRefs,omitempty"`

	// Notes explains caveats, including why an answer was degraded.
	Notes string `json:"notes,omitempty"`

	// Fallback is true when no model output passed validation.
	Fallback bool `json:"fallback,omitempty"`

	// Sources lists the retrieved chunks when the answer fell back.
	Sources []SourceEntry `json:"sources,omitempty"`

	// Repairs is the number of repair prompts issued.
	Repairs int `json:"repairs"`

	// UsedChunks are the chunks the generator was constrained to.
	UsedChunks []ChunkRef `json:"usedChunks,omitempty"`
}

// IsEmpty reports whether the answer carries no content.
func (a *AskAnswer) IsEmpty() bool {
	return len(a.Claims) == 0 && a.AnswerText == ""
}

// CitationCount returns the number of distinct chunks cited.
func (a *AskAnswer) CitationCount() int {
	seen := make(map[ChunkRef]bool)
	for _, c := range a.Claims {
		for _, ref := range c.Citations {
			seen[ref] = true
		}
	}
	for _, ref := range a.CitationRefs {
		seen[ref.Ref()] = true
	}
	return len(seen)
}

// AskPhase names a stage of the ask pipeline, reported to callers.
type AskPhase string

// Ask phases.
const (
	PhaseRetrieving AskPhase = "retrieving"
	PhasePlanning   AskPhase = "planning"
	PhaseGenerating AskPhase = "generating"
	PhaseValidating AskPhase = "validating"
	PhaseRepairing  AskPhase = "repairing"
	PhaseDone       AskPhase = "done"
)

// AskOptions configures one ask request.
type AskOptions struct {
	Mode         AskMode
	TopK         int
	CandidateK   int
	MinCitations int
	MaxRepairs   int

	// Retrieved skips retrieval when set.
	Retrieved []RetrievedChunk

	// Lookup resolves current document content for retrieval.
	Lookup DocumentLookup

	// Language asks the model to answer in a specific language.
	Language string
}
