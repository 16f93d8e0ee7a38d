package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
)

// ==================== Vector Store ====================

// vectorStore implements driven.VectorStore.
type vectorStore struct {
	store *Store
}

var _ driven.VectorStore = (*vectorStore)(nil)

// Begin starts a write transaction for one document's indexing pass.
func (s *vectorStore) Begin(ctx context.Context) (driven.VectorTx, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &vectorTx{tx: tx}, nil
}

// GetDocChunkMap returns chunkID -> {hash, model} for a document.
func (s *vectorStore) GetDocChunkMap(ctx context.Context, docID string) (map[string]domain.ChunkFingerprint, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT chunk_id, text_hash, model_name FROM chunks WHERE doc_id = ?
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("querying chunk map: %w", err)
	}
	defer rows.Close()

	m := make(map[string]domain.ChunkFingerprint)
	for rows.Next() {
		var id string
		var fp domain.ChunkFingerprint
		if err := rows.Scan(&id, &fp.Hash, &fp.ModelName); err != nil {
			return nil, fmt.Errorf("scanning chunk map: %w", err)
		}
		m[id] = fp
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk map: %w", err)
	}
	return m, nil
}

// GetDocState returns the state of a document, or nil if none is stored.
func (s *vectorStore) GetDocState(ctx context.Context, docID string) (*domain.DocumentIndexState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT doc_id, doc_text_hash, chunk_count, updated_at FROM doc_state WHERE doc_id = ?
	`, docID)

	var st domain.DocumentIndexState
	var updated string
	if err := row.Scan(&st.DocID, &st.DocTextHash, &st.ChunkCount, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning doc state: %w", err)
	}
	st.UpdatedAt = parseTime(updated)
	return &st, nil
}

// GetAllDocStates returns every stored document state ordered by ID.
func (s *vectorStore) GetAllDocStates(ctx context.Context) ([]domain.DocumentIndexState, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT doc_id, doc_text_hash, chunk_count, updated_at FROM doc_state ORDER BY doc_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying doc states: %w", err)
	}
	defer rows.Close()

	var states []domain.DocumentIndexState //nolint:prealloc // size unknown from query
	for rows.Next() {
		var st domain.DocumentIndexState
		var updated string
		if err := rows.Scan(&st.DocID, &st.DocTextHash, &st.ChunkCount, &updated); err != nil {
			return nil, fmt.Errorf("scanning doc state: %w", err)
		}
		st.UpdatedAt = parseTime(updated)
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating doc states: %w", err)
	}
	return states, nil
}

// GetEmbeddingsForModel returns every chunk with a stored vector for model.
func (s *vectorStore) GetEmbeddingsForModel(ctx context.Context, model string) ([]domain.StoredChunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT doc_id, chunk_id, chunk_index, start_char, end_char, text_hash, preview,
		       model_name, vector, vector_dim, updated_at
		FROM chunks
		WHERE model_name = ? AND vector IS NOT NULL
		ORDER BY doc_id, chunk_index
	`, model)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var chunks []domain.StoredChunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		c, err := scanStoredChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}
	return chunks, nil
}

// RemapDocumentID moves all rows of oldID to newID, rewriting derived chunk
// IDs. Returns false without changes if newID already has state or oldID has none.
func (s *vectorStore) RemapDocumentID(ctx context.Context, oldID, newID string) (bool, error) {
	if oldID == newID {
		return false, nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM doc_state WHERE doc_id = ?", newID).Scan(&n); err != nil {
		return false, fmt.Errorf("checking target state: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	res, err := tx.ExecContext(ctx, "UPDATE doc_state SET doc_id = ? WHERE doc_id = ?", newID, oldID)
	if err != nil {
		return false, fmt.Errorf("remapping doc state: %w", err)
	}
	if moved, _ := res.RowsAffected(); moved == 0 {
		return false, nil
	}

	// Stray chunks under the new ID would collide on the primary key.
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE doc_id = ?", newID); err != nil {
		return false, fmt.Errorf("clearing target chunks: %w", err)
	}

	oldPrefix, newPrefix := oldID+"::", newID+"::"
	_, err = tx.ExecContext(ctx, `
		UPDATE chunks SET
			doc_id = ?,
			chunk_id = CASE
				WHEN substr(chunk_id, 1, length(?)) = ? THEN ? || substr(chunk_id, length(?) + 1)
				ELSE chunk_id
			END
		WHERE doc_id = ?
	`, newID, oldPrefix, oldPrefix, newPrefix, oldPrefix, oldID)
	if err != nil {
		return false, fmt.Errorf("remapping chunks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}

// DeleteDocument removes all chunks and the state of a document.
func (s *vectorStore) DeleteDocument(ctx context.Context, docID string) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := tx.DeleteChunksNotIn(ctx, docID, nil); err != nil {
		return err
	}
	if err := tx.DeleteDocState(ctx, docID); err != nil {
		return err
	}
	return tx.Commit()
}

// ChunkStats counts chunks per embedding model. Chunks without a vector
// are counted under "".
func (s *vectorStore) ChunkStats(ctx context.Context) (map[string]int, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT CASE WHEN vector IS NULL THEN '' ELSE model_name END AS model, COUNT(*)
		FROM chunks GROUP BY model
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunk stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var model string
		var count int
		if err := rows.Scan(&model, &count); err != nil {
			return nil, fmt.Errorf("scanning chunk stats: %w", err)
		}
		stats[model] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk stats: %w", err)
	}
	return stats, nil
}

// ==================== Vector Transaction ====================

// vectorTx implements driven.VectorTx over a *sql.Tx.
type vectorTx struct {
	tx *sql.Tx
}

var _ driven.VectorTx = (*vectorTx)(nil)

// UpsertChunk inserts or updates a chunk. With a nil vector the stored
// vector, dimension and model are kept; a new row gets an empty model so
// the next diff schedules it for embedding.
func (t *vectorTx) UpsertChunk(ctx context.Context, chunk domain.Chunk, model string, vector []float32) error {
	now := formatTime(time.Now())

	var blob any
	storedModel := ""
	if vector != nil {
		blob = encodeVector(vector)
		storedModel = model
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO chunks (doc_id, chunk_id, chunk_index, start_char, end_char, text_hash, preview,
		                    model_name, vector, vector_dim, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id, chunk_id) DO UPDATE SET
			chunk_index = excluded.chunk_index,
			start_char = excluded.start_char,
			end_char = excluded.end_char,
			text_hash = excluded.text_hash,
			preview = excluded.preview,
			model_name = CASE WHEN excluded.vector IS NULL THEN chunks.model_name ELSE excluded.model_name END,
			vector = COALESCE(excluded.vector, chunks.vector),
			vector_dim = CASE WHEN excluded.vector IS NULL THEN chunks.vector_dim ELSE excluded.vector_dim END,
			updated_at = excluded.updated_at
	`, chunk.DocID, chunk.ID, chunk.Index, chunk.StartChar, chunk.EndChar, chunk.TextHash, chunk.Preview,
		storedModel, blob, len(vector), now, now)
	if err != nil {
		return fmt.Errorf("upserting chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// DeleteChunksNotIn deletes the document's chunks absent from keep.
func (t *vectorTx) DeleteChunksNotIn(ctx context.Context, docID string, keep []string) error {
	query := "DELETE FROM chunks WHERE doc_id = ?"
	args := []any{docID}
	if len(keep) > 0 {
		query += " AND chunk_id NOT IN (" + strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",") + ")"
		for _, id := range keep {
			args = append(args, id)
		}
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting stale chunks: %w", err)
	}
	return nil
}

// UpsertDocState inserts or replaces a document's state.
func (t *vectorTx) UpsertDocState(ctx context.Context, st domain.DocumentIndexState) error {
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO doc_state (doc_id, doc_text_hash, chunk_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			doc_text_hash = excluded.doc_text_hash,
			chunk_count = excluded.chunk_count,
			updated_at = excluded.updated_at
	`, st.DocID, st.DocTextHash, st.ChunkCount, formatTime(updated))
	if err != nil {
		return fmt.Errorf("upserting doc state: %w", err)
	}
	return nil
}

// DeleteDocState removes a document's state.
func (t *vectorTx) DeleteDocState(ctx context.Context, docID string) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM doc_state WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("deleting doc state: %w", err)
	}
	return nil
}

// Commit commits the transaction.
func (t *vectorTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. It is a no-op after Commit.
func (t *vectorTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// ==================== Metadata Store ====================

// metadataStore implements driven.MetadataStore.
type metadataStore struct {
	store *Store
}

var _ driven.MetadataStore = (*metadataStore)(nil)

// GetMeta returns the value stored under key.
func (s *metadataStore) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.store.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading metadata %s: %w", key, err)
	}
	return value, true, nil
}

// SetMeta stores value under key.
func (s *metadataStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("writing metadata %s: %w", key, err)
	}
	return nil
}

// ==================== Helper Functions ====================

// scanStoredChunk scans a chunk row including its vector.
func scanStoredChunk(rows *sql.Rows) (*domain.StoredChunk, error) {
	var c domain.StoredChunk
	var blob []byte
	var updated string
	if err := rows.Scan(&c.DocID, &c.ID, &c.Index, &c.StartChar, &c.EndChar, &c.TextHash, &c.Preview,
		&c.ModelName, &blob, &c.Dim, &updated); err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	v, err := decodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding vector of %s: %w", c.ID, err)
	}
	if len(v) != c.Dim {
		return nil, fmt.Errorf("chunk %s: vector has %d values, expected %d", c.ID, len(v), c.Dim)
	}
	c.Vector = v
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// timeLayout is fixed-width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime formats a time for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored time, returning the zero time on failure.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
