package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentKind tags a document with its format. It is resolved once when
// documents are loaded, so the core never inspects file names or MIME types.
type DocumentKind string

// Document kinds.
const (
	KindText     DocumentKind = "text"
	KindMarkdown DocumentKind = "markdown"
	KindPDF      DocumentKind = "pdf"
	KindDOCX     DocumentKind = "docx"
	KindBinary   DocumentKind = "binary"
)

// IsTextual reports whether documents of this kind carry indexable text.
// The zero value is treated as text.
func (k DocumentKind) IsTextual() bool {
	switch k {
	case "", KindText, KindMarkdown:
		return true
	default:
		return false
	}
}

// KindFromPath resolves a document kind from a file extension.
func KindFromPath(path string) DocumentKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text", "":
		return KindText
	case ".md", ".markdown":
		return KindMarkdown
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	default:
		return KindBinary
	}
}

// Document is a caller-supplied text record. The core does not own
// document storage; it receives every document on every run.
type Document struct {
	// ID is the opaque, unique document identifier.
	ID string `json:"id" yaml:"id"`

	// Title is the human-readable title.
	Title string `json:"title" yaml:"title"`

	// Content is the document text. It is canonicalised before chunking.
	Content string `json:"content" yaml:"content"`

	// Kind tags the document format. Non-textual kinds are skipped.
	Kind DocumentKind `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Chunk is a bounded, offset-addressed slice of a document's canonical text.
type Chunk struct {
	// DocID links to the parent document.
	DocID string

	// ID is unique within the document, conventionally "docID::index".
	ID string

	// Index is the 0-based, dense position within the document.
	Index int

	// StartChar and EndChar are half-open offsets into the canonical text.
	StartChar int
	EndChar   int

	// TextHash is the content hash of the slice.
	TextHash string

	// Preview is a truncated, whitespace-collapsed copy of the text.
	Preview string
}

// Len returns the number of characters the chunk spans.
func (c Chunk) Len() int {
	return c.EndChar - c.StartChar
}

// StoredChunk is a chunk as persisted, with its optional embedding.
type StoredChunk struct {
	Chunk

	// ModelName is the embedding model that produced Vector.
	ModelName string

	// Vector is nil while the chunk is queued for embedding.
	Vector []float32

	// Dim is the vector dimension, zero when Vector is nil.
	Dim int

	// UpdatedAt is when the row was last written.
	UpdatedAt time.Time
}

// ChunkFingerprint is the stored identity of a chunk used for diffing.
type ChunkFingerprint struct {
	Hash      string
	ModelName string
}

// DocumentIndexState records what was last indexed for a document.
type DocumentIndexState struct {
	// DocID is the document identifier.
	DocID string

	// DocTextHash is the hash of the full canonical content.
	DocTextHash string

	// ChunkCount is the number of chunks committed for the document.
	ChunkCount int

	// UpdatedAt is when the state was last committed.
	UpdatedAt time.Time
}
