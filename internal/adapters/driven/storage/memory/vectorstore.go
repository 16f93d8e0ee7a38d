package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
)

// Ensure VectorStore implements the interfaces.
var (
	_ driven.VectorStore   = (*VectorStore)(nil)
	_ driven.MetadataStore = (*VectorStore)(nil)
)

// errTxClosed is returned when a finished transaction is reused.
var errTxClosed = errors.New("transaction already closed")

// VectorStore is an in-memory implementation of driven.VectorStore and
// driven.MetadataStore with the same semantics as the SQLite store.
type VectorStore struct {
	mu     sync.RWMutex
	chunks map[string]map[string]domain.StoredChunk
	states map[string]domain.DocumentIndexState
	meta   map[string]string
}

// NewVectorStore creates a new in-memory vector store.
func NewVectorStore() *VectorStore {
	return &VectorStore{
		chunks: make(map[string]map[string]domain.StoredChunk),
		states: make(map[string]domain.DocumentIndexState),
		meta:   make(map[string]string),
	}
}

// Begin starts a buffered transaction. Writes are applied on Commit.
func (s *VectorStore) Begin(_ context.Context) (driven.VectorTx, error) {
	return &vectorTx{store: s}, nil
}

// GetDocChunkMap returns chunkID -> fingerprint for a document.
func (s *VectorStore) GetDocChunkMap(_ context.Context, docID string) (map[string]domain.ChunkFingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := make(map[string]domain.ChunkFingerprint, len(s.chunks[docID]))
	for id, c := range s.chunks[docID] {
		m[id] = domain.ChunkFingerprint{Hash: c.TextHash, ModelName: c.ModelName}
	}
	return m, nil
}

// GetDocState returns a copy of the document's state, or nil.
func (s *VectorStore) GetDocState(_ context.Context, docID string) (*domain.DocumentIndexState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[docID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// GetAllDocStates returns all states ordered by document ID.
func (s *VectorStore) GetAllDocStates(_ context.Context) ([]domain.DocumentIndexState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make([]domain.DocumentIndexState, 0, len(s.states))
	for _, st := range s.states {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].DocID < states[j].DocID })
	return states, nil
}

// GetEmbeddingsForModel returns chunks with a vector for model, ordered
// by document ID then chunk index.
func (s *VectorStore) GetEmbeddingsForModel(_ context.Context, model string) ([]domain.StoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.StoredChunk
	for _, doc := range s.chunks {
		for _, c := range doc {
			if c.Vector != nil && c.ModelName == model {
				c.Vector = append([]float32(nil), c.Vector...)
				result = append(result, c)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DocID != result[j].DocID {
			return result[i].DocID < result[j].DocID
		}
		return result[i].Index < result[j].Index
	})
	return result, nil
}

// RemapDocumentID moves oldID's chunks and state to newID.
func (s *VectorStore) RemapDocumentID(_ context.Context, oldID, newID string) (bool, error) {
	if oldID == newID {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.states[newID]; exists {
		return false, nil
	}
	st, ok := s.states[oldID]
	if !ok {
		return false, nil
	}

	st.DocID = newID
	s.states[newID] = st
	delete(s.states, oldID)

	oldPrefix, newPrefix := oldID+"::", newID+"::"
	moved := make(map[string]domain.StoredChunk, len(s.chunks[oldID]))
	for id, c := range s.chunks[oldID] {
		if strings.HasPrefix(id, oldPrefix) {
			id = newPrefix + strings.TrimPrefix(id, oldPrefix)
		}
		c.DocID, c.ID = newID, id
		moved[id] = c
	}
	s.chunks[newID] = moved
	delete(s.chunks, oldID)
	return true, nil
}

// DeleteDocument removes a document's chunks and state.
func (s *VectorStore) DeleteDocument(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, docID)
	delete(s.states, docID)
	return nil
}

// ChunkStats counts chunks per model; chunks without a vector count under "".
func (s *VectorStore) ChunkStats(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := make(map[string]int)
	for _, doc := range s.chunks {
		for _, c := range doc {
			if c.Vector == nil {
				stats[""]++
			} else {
				stats[c.ModelName]++
			}
		}
	}
	return stats, nil
}

// GetMeta returns the value stored under key.
func (s *VectorStore) GetMeta(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.meta[key]
	return v, ok, nil
}

// SetMeta stores value under key.
func (s *VectorStore) SetMeta(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = value
	return nil
}

// vectorTx buffers writes and applies them atomically on Commit.
type vectorTx struct {
	store  *VectorStore
	ops    []func(*VectorStore)
	closed bool
}

func (t *vectorTx) add(op func(*VectorStore)) error {
	if t.closed {
		return errTxClosed
	}
	t.ops = append(t.ops, op)
	return nil
}

// UpsertChunk queues a chunk write. A nil vector keeps the stored one.
func (t *vectorTx) UpsertChunk(_ context.Context, chunk domain.Chunk, model string, vector []float32) error {
	var v []float32
	if vector != nil {
		v = append([]float32(nil), vector...)
	}
	now := time.Now().UTC()
	return t.add(func(s *VectorStore) {
		doc := s.chunks[chunk.DocID]
		if doc == nil {
			doc = make(map[string]domain.StoredChunk)
			s.chunks[chunk.DocID] = doc
		}
		next := domain.StoredChunk{Chunk: chunk, UpdatedAt: now}
		if v != nil {
			next.Vector, next.Dim, next.ModelName = v, len(v), model
		} else if prev, ok := doc[chunk.ID]; ok {
			next.Vector, next.Dim, next.ModelName = prev.Vector, prev.Dim, prev.ModelName
		}
		doc[chunk.ID] = next
	})
}

// DeleteChunksNotIn queues deletion of chunks absent from keep.
func (t *vectorTx) DeleteChunksNotIn(_ context.Context, docID string, keep []string) error {
	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}
	return t.add(func(s *VectorStore) {
		for id := range s.chunks[docID] {
			if !keepSet[id] {
				delete(s.chunks[docID], id)
			}
		}
		if len(s.chunks[docID]) == 0 {
			delete(s.chunks, docID)
		}
	})
}

// UpsertDocState queues a state write.
func (t *vectorTx) UpsertDocState(_ context.Context, st domain.DocumentIndexState) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	return t.add(func(s *VectorStore) {
		s.states[st.DocID] = st
	})
}

// DeleteDocState queues a state deletion.
func (t *vectorTx) DeleteDocState(_ context.Context, docID string) error {
	return t.add(func(s *VectorStore) {
		delete(s.states, docID)
	})
}

// Commit applies all queued writes under the store lock.
func (t *vectorTx) Commit() error {
	if t.closed {
		return errTxClosed
	}
	t.closed = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, op := range t.ops {
		op(t.store)
	}
	t.ops = nil
	return nil
}

// Rollback discards queued writes. It is a no-op after Commit.
func (t *vectorTx) Rollback() error {
	t.closed = true
	t.ops = nil
	return nil
}
