package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driving"
	"github.com/s-edling/quackdas-sub000/internal/logger"
	"github.com/s-edling/quackdas-sub000/internal/metrics"
)

// Ensure JobManager implements the interface.
var _ driving.JobManager = (*JobManager)(nil)

const (
	// eventBuffer is the capacity of each job's event channel.
	eventBuffer = 256

	// historyKeep is how many finished jobs of each kind are kept.
	historyKeep = 100
)

// jobKey identifies a registry slot: one job of each kind per session.
type jobKey struct {
	session string
	kind    domain.JobKind
}

// JobManager runs index and ask jobs as owned background units. Each job
// reports through its own event channel and ends with exactly one terminal
// event, after which the channel is closed.
type JobManager struct {
	indexer driving.Indexer
	asker   driving.AskService
	history driven.JobHistoryStore
	grace   time.Duration

	mu       sync.Mutex
	registry map[jobKey]*job
	wg       sync.WaitGroup
}

// NewJobManager creates a job manager. The history store is optional.
func NewJobManager(
	indexer driving.Indexer,
	asker driving.AskService,
	history driven.JobHistoryStore,
	settings domain.JobSettings,
) *JobManager {
	grace := settings.CancelGrace
	if grace <= 0 {
		grace = domain.DefaultAppSettings().Jobs.CancelGrace
	}
	return &JobManager{
		indexer:  indexer,
		asker:    asker,
		history:  history,
		grace:    grace,
		registry: make(map[jobKey]*job),
	}
}

// Start launches a job. The job runs until it finishes or is cancelled
// through Cancel or ctx.
func (m *JobManager) Start(ctx context.Context, sessionID string, req driving.JobRequest) (*driving.JobHandle, error) {
	if !req.Kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown job kind %q", domain.ErrInvalidInput, req.Kind)
	}
	if req.Kind == domain.JobKindIndex && m.indexer == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if req.Kind == domain.JobKindAsk && m.asker == nil {
		return nil, domain.ErrLLMUnavailable
	}

	key := jobKey{session: sessionID, kind: req.Kind}

	m.mu.Lock()
	if _, busy := m.registry[key]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s job for session %q", domain.ErrJobRunning, req.Kind, sessionID)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	j := &job{
		id:        uuid.NewString(),
		key:       key,
		cancel:    cancel,
		status:    domain.JobRunning,
		events:    make(chan domain.JobEvent, eventBuffer),
		stop:      make(chan struct{}),
		startedAt: time.Now(),
	}
	j.log = logger.With("job_id", j.id, "kind", req.Kind, "session", sessionID)
	m.registry[key] = j
	m.wg.Add(1)
	m.mu.Unlock()

	metrics.ActiveJobs.Inc()
	j.log.Debug("job started")

	go m.work(jobCtx, j, req)

	return &driving.JobHandle{ID: j.id, Kind: req.Kind, Events: j.events}, nil
}

// Cancel sends a cooperative cancel to the session's job of kind. A job
// still running after the grace period is abandoned and reported cancelled.
func (m *JobManager) Cancel(sessionID string, kind domain.JobKind) error {
	m.mu.Lock()
	j, ok := m.registry[jobKey{session: sessionID, kind: kind}]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s job for session %q", domain.ErrNoJob, kind, sessionID)
	}

	j.mu.Lock()
	if j.status != domain.JobRunning {
		j.mu.Unlock()
		return nil
	}
	j.status = domain.JobCancelling
	j.grace = time.AfterFunc(m.grace, func() {
		j.log.Warn("job did not stop within grace period, abandoning", "grace", m.grace)
		m.finish(j, j.cancelledEvent(), 0, "abandoned after cancel")
	})
	j.mu.Unlock()

	j.log.Debug("job cancelling")
	j.cancel()
	return nil
}

// Active reports the status of the session's job of kind.
func (m *JobManager) Active(sessionID string, kind domain.JobKind) (domain.JobStatus, bool) {
	m.mu.Lock()
	j, ok := m.registry[jobKey{session: sessionID, kind: kind}]
	m.mu.Unlock()
	if !ok {
		return "", false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status, true
}

// Wait blocks until every started job's worker has returned.
func (m *JobManager) Wait() {
	m.wg.Wait()
}

// work runs the job body and converts its outcome to a terminal event.
func (m *JobManager) work(ctx context.Context, j *job, req driving.JobRequest) {
	defer m.wg.Done()
	defer j.cancel()

	result, items, err := m.execute(ctx, j, req)

	switch {
	case err == nil:
		m.finish(j, j.event(domain.EventDone, result), items, "")
	case ctx.Err() != nil || IsCancelled(err):
		m.finish(j, j.cancelledEvent(), items, err.Error())
	default:
		ev := j.event(domain.EventError, err)
		ev.Code = domain.CodeOf(err)
		m.finish(j, ev, items, err.Error())
	}
}

// execute runs the job body, converting a panic into a WORKER_CRASHED error.
func (m *JobManager) execute(ctx context.Context, j *job, req driving.JobRequest) (result any, items int, err error) {
	defer func() {
		if r := recover(); r != nil {
			j.log.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
			err = domain.NewError(domain.CodeWorkerCrashed, fmt.Sprintf("job crashed: %v", r))
		}
	}()

	switch req.Kind {
	case domain.JobKindIndex:
		summary, err := m.indexer.Run(ctx, req.Documents, req.IndexOptions, func(p domain.Progress) {
			j.emit(j.event(domain.EventProgress, p))
		})
		if err != nil {
			return nil, 0, err
		}
		return summary, summary.ChunksEmbedded, nil

	default:
		answer, err := m.asker.Ask(ctx, req.Question, req.AskOptions, driving.AskSink{
			Phase: func(p domain.AskPhase) {
				j.emit(j.event(domain.EventPhase, p))
			},
			Retrieved: func(chunks []domain.RetrievedChunk) {
				j.emit(j.event(domain.EventRetrieved, chunks))
			},
			Stream: func(delta string) {
				j.emit(j.event(domain.EventStream, delta))
			},
		})
		if err != nil {
			return nil, 0, err
		}
		return answer, answer.CitationCount(), nil
	}
}

// finish delivers the terminal event exactly once, frees the registry slot
// and records the outcome.
func (m *JobManager) finish(j *job, ev domain.JobEvent, items int, errMsg string) {
	j.once.Do(func() {
		status := terminalStatus(ev.Type)

		j.mu.Lock()
		j.status = status
		if j.grace != nil {
			j.grace.Stop()
		}
		j.mu.Unlock()

		// Unblock any producer, then free the slot so a new job may start
		// as soon as the caller sees the terminal event.
		close(j.stop)
		m.mu.Lock()
		if m.registry[j.key] == j {
			delete(m.registry, j.key)
		}
		m.mu.Unlock()

		j.sendMu.Lock()
		j.closed = true
		j.events <- ev
		close(j.events)
		j.sendMu.Unlock()

		metrics.ActiveJobs.Dec()
		metrics.JobsTotal.WithLabelValues(string(j.key.kind), string(status)).Inc()
		j.log.Debug("job finished", "status", status, "items", items)

		m.record(j, status, items, errMsg)
	})
}

func (m *JobManager) record(j *job, status domain.JobStatus, items int, errMsg string) {
	if m.history == nil {
		return
	}
	ctx := context.Background()
	rec := domain.JobRecord{
		ID:        j.id,
		Kind:      j.key.kind,
		SessionID: j.key.session,
		Status:    status,
		Error:     errMsg,
		StartedAt: j.startedAt,
		EndedAt:   time.Now(),
		Items:     items,
	}
	if err := m.history.Record(ctx, rec); err != nil {
		j.log.Warn("failed to record job", "error", err)
		return
	}
	if err := m.history.Prune(ctx, historyKeep); err != nil {
		j.log.Warn("failed to prune job history", "error", err)
	}
}

func terminalStatus(t domain.JobEventType) domain.JobStatus {
	switch t {
	case domain.EventDone:
		return domain.JobDone
	case domain.EventCancelled:
		return domain.JobCancelled
	default:
		return domain.JobError
	}
}

// job is one running unit of work. Only its worker emits non-terminal
// events; finish emits the terminal one.
type job struct {
	id        string
	key       jobKey
	cancel    context.CancelFunc
	startedAt time.Time
	log       *slog.Logger

	mu     sync.Mutex
	status domain.JobStatus
	grace  *time.Timer

	sendMu sync.Mutex
	closed bool
	events chan domain.JobEvent
	stop   chan struct{}
	once   sync.Once
}

func (j *job) event(t domain.JobEventType, payload any) domain.JobEvent {
	return domain.JobEvent{
		JobID:   j.id,
		Kind:    j.key.kind,
		Type:    t,
		Payload: payload,
		At:      time.Now(),
	}
}

func (j *job) cancelledEvent() domain.JobEvent {
	ev := j.event(domain.EventCancelled, nil)
	ev.Code = domain.CodeAskCancelled
	if j.key.kind == domain.JobKindIndex {
		ev.Code = domain.CodeIndexCancelled
	}
	return ev
}

// emit delivers a non-terminal event, blocking while the buffer is full.
// Events emitted after the job finished are dropped.
func (j *job) emit(ev domain.JobEvent) {
	select {
	case <-j.stop:
		return
	default:
	}

	j.sendMu.Lock()
	defer j.sendMu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.events <- ev:
	case <-j.stop:
	}
}
