package domain

import "time"

// JobKind identifies what a background job does.
type JobKind string

// Job kinds.
const (
	JobKindIndex JobKind = "index"
	JobKindAsk   JobKind = "ask"
)

// IsValid returns true if the kind is recognised.
func (k JobKind) IsValid() bool {
	return k == JobKindIndex || k == JobKindAsk
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job statuses. Done, Cancelled and Error are terminal.
const (
	JobRunning    JobStatus = "running"
	JobCancelling JobStatus = "cancelling"
	JobDone       JobStatus = "done"
	JobCancelled  JobStatus = "cancelled"
	JobError      JobStatus = "error"
)

// IsTerminal reports whether the status ends a job.
func (s JobStatus) IsTerminal() bool {
	return s == JobDone || s == JobCancelled || s == JobError
}

// JobEventType is the type of a message sent from a job to its caller.
type JobEventType string

// Job event types.
const (
	EventProgress  JobEventType = "progress"
	EventRetrieved JobEventType = "retrieved"
	EventStream    JobEventType = "stream"
	EventPhase     JobEventType = "phase"
	EventDone      JobEventType = "done"
	EventCancelled JobEventType = "cancelled"
	EventError     JobEventType = "error"
)

// IsTerminal reports whether the event ends the job's stream.
func (t JobEventType) IsTerminal() bool {
	return t == EventDone || t == EventCancelled || t == EventError
}

// Progress reports indexing progress.
type Progress struct {
	// Phase is a short label such as "planning" or "embedding".
	Phase string `json:"phase"`

	// Percent is Embedded/Total scaled to 0-100.
	Percent float64 `json:"percent"`

	// Embedded is the number of chunks embedded so far.
	Embedded int `json:"embedded"`

	// Total is the number of chunks needing embedding across all documents.
	Total int `json:"total"`

	// DocIndex and DocCount locate the current document.
	DocIndex int    `json:"docIndex"`
	DocCount int    `json:"docCount"`
	DocID    string `json:"docId,omitempty"`
}

// JobEvent is one outbound message from a job. Payload depends on Type:
// Progress for progress, []RetrievedChunk for retrieved, string for stream,
// AskPhase for phase, *IndexSummary or *AskAnswer for done, error for error.
type JobEvent struct {
	JobID   string       `json:"jobId"`
	Kind    JobKind      `json:"kind"`
	Type    JobEventType `json:"type"`
	Payload any          `json:"payload,omitempty"`
	Code    ErrorCode    `json:"code,omitempty"`
	At      time.Time    `json:"at"`
}

// IndexSummary is the result of an indexing run.
type IndexSummary struct {
	Documents      int           `json:"documents"`
	Unchanged      int           `json:"unchanged"`
	Skipped        int           `json:"skipped"`
	Removed        int           `json:"removed"`
	Remapped       int           `json:"remapped"`
	ChunksTotal    int           `json:"chunksTotal"`
	ChunksEmbedded int           `json:"chunksEmbedded"`
	Duration       time.Duration `json:"duration"`
}

// IndexOptions configures an indexing run.
type IndexOptions struct {
	ModelName   string
	Chunking    ChunkingSettings
	Concurrency int

	// Prune removes stored documents absent from the batch.
	Prune bool
}

// IndexStatus summarises the persisted index.
type IndexStatus struct {
	Documents      int            `json:"documents"`
	Chunks         int            `json:"chunks"`
	EmbeddedChunks int            `json:"embeddedChunks"`
	ActiveModel    string         `json:"activeModel"`
	Models         map[string]int `json:"models"`
	LastUpdated    time.Time      `json:"lastUpdated"`
}

// JobRecord is the persisted outcome of a finished job.
type JobRecord struct {
	ID        string
	Kind      JobKind
	SessionID string
	Status    JobStatus
	Error     string
	StartedAt time.Time
	EndedAt   time.Time

	// Items is a count of work done (chunks embedded, citations returned).
	Items int
}
