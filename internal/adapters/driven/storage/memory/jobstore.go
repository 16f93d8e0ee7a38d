package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
)

// Ensure JobHistoryStore implements the interface.
var _ driven.JobHistoryStore = (*JobHistoryStore)(nil)

// JobHistoryStore is an in-memory implementation of driven.JobHistoryStore.
type JobHistoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.JobRecord
}

// NewJobHistoryStore creates a new in-memory job history store.
func NewJobHistoryStore() *JobHistoryStore {
	return &JobHistoryStore{
		records: make(map[string]domain.JobRecord),
	}
}

// Record stores a finished job, replacing any record with the same ID.
func (s *JobHistoryStore) Record(_ context.Context, rec domain.JobRecord) error {
	if rec.ID == "" || !rec.Kind.IsValid() {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

// History returns recent records, most recent first.
func (s *JobHistoryStore) History(_ context.Context, kind domain.JobKind, limit int) ([]domain.JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	sorted := s.sorted(kind)
	s.mu.RUnlock()

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// Prune keeps the most recent keep records per kind.
func (s *JobHistoryStore) Prune(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range []domain.JobKind{domain.JobKindIndex, domain.JobKindAsk} {
		recs := s.sorted(kind)
		for i := keep; i < len(recs); i++ {
			delete(s.records, recs[i].ID)
		}
	}
	return nil
}

// sorted returns records of kind (all when empty), newest first.
// Caller must hold the lock.
func (s *JobHistoryStore) sorted(kind domain.JobKind) []domain.JobRecord {
	var recs []domain.JobRecord
	for _, rec := range s.records {
		if kind == "" || rec.Kind == kind {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartedAt.After(recs[j].StartedAt)
	})
	return recs
}
