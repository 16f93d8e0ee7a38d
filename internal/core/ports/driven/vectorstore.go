package driven

import (
	"context"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// VectorStore persists chunks, their embeddings and per-document index state.
type VectorStore interface {
	// Begin starts a transaction covering one document's indexing pass.
	Begin(ctx context.Context) (VectorTx, error)

	// GetDocChunkMap returns chunkID -> fingerprint for the document's stored chunks.
	GetDocChunkMap(ctx context.Context, docID string) (map[string]domain.ChunkFingerprint, error)

	// GetDocState returns the document's state, or nil if none is stored.
	GetDocState(ctx context.Context, docID string) (*domain.DocumentIndexState, error)

	// GetAllDocStates returns every stored document state.
	GetAllDocStates(ctx context.Context) ([]domain.DocumentIndexState, error)

	// GetEmbeddingsForModel returns all chunks with a stored vector for model.
	GetEmbeddingsForModel(ctx context.Context, model string) ([]domain.StoredChunk, error)

	// RemapDocumentID atomically renames every row of oldID to newID.
	// It is a no-op returning false when newID already has state.
	RemapDocumentID(ctx context.Context, oldID, newID string) (bool, error)

	// DeleteDocument removes all chunks and the state of a document.
	DeleteDocument(ctx context.Context, docID string) error

	// ChunkStats returns chunk counts per embedding model, including
	// chunks without a vector under the empty model name.
	ChunkStats(ctx context.Context) (map[string]int, error)
}

// VectorTx is a write transaction. Nothing written through it is visible
// to readers until Commit; Rollback after Commit is a no-op.
type VectorTx interface {
	// UpsertChunk inserts or updates a chunk. A nil vector preserves any
	// previously stored vector and dimension.
	UpsertChunk(ctx context.Context, chunk domain.Chunk, model string, vector []float32) error

	// DeleteChunksNotIn deletes the document's chunks whose ID is absent
	// from keep. An empty keep deletes all of the document's chunks.
	DeleteChunksNotIn(ctx context.Context, docID string, keep []string) error

	// UpsertDocState inserts or replaces a document's state.
	UpsertDocState(ctx context.Context, state domain.DocumentIndexState) error

	// DeleteDocState removes a document's state.
	DeleteDocState(ctx context.Context, docID string) error

	Commit() error
	Rollback() error
}

// MetadataStore is a generic string key-value table persisted with the index.
type MetadataStore interface {
	// GetMeta returns the value for key, or "" and false.
	GetMeta(ctx context.Context, key string) (string, bool, error)

	// SetMeta stores value under key.
	SetMeta(ctx context.Context, key, value string) error
}

// Metadata keys.
const (
	MetaEmbeddingModel = "embedding_model"
	MetaLLMModel       = "llm_model"
)
