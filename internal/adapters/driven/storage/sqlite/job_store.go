package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
)

// ==================== Job History Store ====================

// jobHistoryStore implements driven.JobHistoryStore.
type jobHistoryStore struct {
	store *Store
}

var _ driven.JobHistoryStore = (*jobHistoryStore)(nil)

// Record stores a finished job. Re-recording the same ID overwrites it.
func (s *jobHistoryStore) Record(ctx context.Context, rec domain.JobRecord) error {
	if rec.ID == "" || !rec.Kind.IsValid() {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO job_runs (id, kind, session_id, status, error, items, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			items = excluded.items,
			ended_at = excluded.ended_at
	`, rec.ID, string(rec.Kind), rec.SessionID, string(rec.Status), nullString(rec.Error), rec.Items,
		formatTime(rec.StartedAt), formatTime(rec.EndedAt))
	if err != nil {
		return fmt.Errorf("recording job run: %w", err)
	}
	return nil
}

// History returns recent records, most recent first.
func (s *jobHistoryStore) History(ctx context.Context, kind domain.JobKind, limit int) ([]domain.JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, kind, session_id, status, error, items, started_at, ended_at
		FROM job_runs
		WHERE ? = '' OR kind = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, string(kind), string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("querying job history: %w", err)
	}
	defer rows.Close()

	var records []domain.JobRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanJobRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job history: %w", err)
	}
	return records, nil
}

// Prune keeps the most recent keep records per kind.
func (s *jobHistoryStore) Prune(ctx context.Context, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM job_runs
		WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY kind ORDER BY started_at DESC) AS rn
				FROM job_runs
			) WHERE rn <= ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning job history: %w", err)
	}
	return nil
}

// scanJobRecord scans a job record from *sql.Rows.
func scanJobRecord(rows *sql.Rows) (*domain.JobRecord, error) {
	var rec domain.JobRecord
	var kind, status, startedAt, endedAt string
	var errMsg sql.NullString

	if err := rows.Scan(&rec.ID, &kind, &rec.SessionID, &status, &errMsg, &rec.Items,
		&startedAt, &endedAt); err != nil {
		return nil, fmt.Errorf("scanning job record: %w", err)
	}

	rec.Kind = domain.JobKind(kind)
	rec.Status = domain.JobStatus(status)
	if errMsg.Valid {
		rec.Error = errMsg.String
	}
	rec.StartedAt = parseTime(startedAt)
	rec.EndedAt = parseTime(endedAt)
	return &rec, nil
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
