package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driving"
	"github.com/s-edling/quackdas-sub000/internal/logger"
	"github.com/s-edling/quackdas-sub000/internal/metrics"
	"github.com/s-edling/quackdas-sub000/internal/postprocessors/chunker"
)

// Ensure IndexService implements the interface.
var _ driving.Indexer = (*IndexService)(nil)

// embedBatchSize is the number of chunks sent to EmbedMany at once.
// Cancellation is checked between batches.
const embedBatchSize = 32

// Document results, used as metric labels.
const (
	resultIndexed   = "indexed"
	resultUnchanged = "unchanged"
	resultSkipped   = "skipped"
	resultRemoved   = "removed"
	resultRemapped  = "remapped"
)

// IndexService incrementally chunks, embeds and stores documents.
type IndexService struct {
	store    driven.VectorStore
	meta     driven.MetadataStore
	embedder driven.EmbeddingService
}

// NewIndexService creates a new index service.
// The metadata store is optional; when nil the active model is not mirrored.
func NewIndexService(
	store driven.VectorStore,
	meta driven.MetadataStore,
	embedder driven.EmbeddingService,
) *IndexService {
	return &IndexService{
		store:    store,
		meta:     meta,
		embedder: embedder,
	}
}

// docPlan is the indexing work for one document.
type docPlan struct {
	doc       domain.Document
	canonical string
	hash      string
	chunks    []domain.Chunk
	changed   []int // indexes into chunks needing a new vector
	skip      bool
	unchanged bool
}

// Run indexes docs in caller order. Documents committed before a failure
// or cancellation stay committed.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (s *IndexService) Run(
	ctx context.Context,
	docs []domain.Document,
	opts domain.IndexOptions,
	progress func(domain.Progress),
) (*domain.IndexSummary, error) {
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if opts.ModelName == "" {
		return nil, fmt.Errorf("%w: embedding model name is required", domain.ErrInvalidInput)
	}

	start := time.Now()
	summary := &domain.IndexSummary{Documents: len(docs)}
	logger.Section("Indexing")

	// 1. Check before touching the store at all
	if err := ctx.Err(); err != nil {
		return summary, cancelled(err)
	}

	// 2. Load stored states for remapping and pruning
	states, err := s.store.GetAllDocStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load document states: %w", err)
	}
	orphans := orphanStates(states, docs)

	// 3. Plan every document so progress has a global total
	var c *chunker.Chunker
	if opts.Chunking == (domain.ChunkingSettings{}) {
		c = chunker.New()
	} else {
		c = chunker.New(chunker.WithSettings(opts.Chunking))
	}

	plans := make([]docPlan, 0, len(docs))
	total := 0
	for _, doc := range docs {
		plan, err := s.plan(ctx, c, doc, opts.ModelName, orphans, summary)
		if err != nil {
			return summary, err
		}
		plans = append(plans, plan)
		total += len(plan.changed)
	}
	logger.Debug("Planned %d documents, %d chunks to embed", len(plans), total)

	report := newProgressReporter(progress, total, len(plans))
	report.emit("planning", 0, "")

	// 4. Embed and commit one document at a time
	for i := range plans {
		plan := &plans[i]
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, cancelled(err)
		}
		summary.ChunksTotal += len(plan.chunks)

		switch {
		case plan.skip:
			metrics.DocumentsIndexedTotal.WithLabelValues(resultSkipped).Inc()
			continue
		case plan.unchanged:
			metrics.DocumentsIndexedTotal.WithLabelValues(resultUnchanged).Inc()
			continue
		}

		report.emit("embedding", i, plan.doc.ID)
		vectors, err := s.embed(ctx, plan, opts, func() { report.embedded(i, plan.doc.ID) })
		if err != nil {
			summary.Duration = time.Since(start)
			if ctx.Err() != nil {
				return summary, cancelled(ctx.Err())
			}
			return summary, fmt.Errorf("embed %s: %w", plan.doc.ID, err)
		}

		// A commit that has its vectors is finished even if the caller
		// cancels meanwhile.
		if err := s.commit(context.WithoutCancel(ctx), plan, opts.ModelName, vectors); err != nil {
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("commit %s: %w", plan.doc.ID, err)
		}

		summary.ChunksEmbedded += len(plan.changed)
		metrics.ChunksEmbeddedTotal.Add(float64(len(plan.changed)))
		metrics.DocumentsIndexedTotal.WithLabelValues(resultIndexed).Inc()
		logger.Debug("Indexed %s: %d chunks, %d embedded", plan.doc.ID, len(plan.chunks), len(plan.changed))
	}

	// 5. Remove documents that are no longer supplied
	if opts.Prune {
		removed, err := s.prune(ctx, docs)
		summary.Removed = removed
		if err != nil {
			return summary, err
		}
	}

	// 6. Mirror the active model so the store describes itself
	if s.meta != nil {
		if err := s.meta.SetMeta(ctx, driven.MetaEmbeddingModel, opts.ModelName); err != nil {
			logger.Warn("Failed to record embedding model: %v", err)
		}
	}

	summary.Duration = time.Since(start)
	report.emit("done", len(plans), "")
	logger.Info("Indexing complete: %d documents, %d unchanged, %d skipped, %d chunks embedded",
		summary.Documents, summary.Unchanged, summary.Skipped, summary.ChunksEmbedded)
	return summary, nil
}

// plan chunks a document and diffs it against the stored chunk map.
func (s *IndexService) plan(
	ctx context.Context,
	c *chunker.Chunker,
	doc domain.Document,
	model string,
	orphans map[string]string,
	summary *domain.IndexSummary,
) (docPlan, error) {
	plan := docPlan{doc: doc}
	if !doc.Kind.IsTextual() {
		logger.Debug("Skipping %s: kind %s is not textual", doc.ID, doc.Kind)
		plan.skip = true
		summary.Skipped++
		return plan, nil
	}

	plan.canonical = chunker.Canonicalize(doc.Content)
	plan.hash = chunker.Hash(plan.canonical)
	plan.chunks = c.Chunk(doc.ID, plan.canonical)

	state, err := s.store.GetDocState(ctx, doc.ID)
	if err != nil {
		return plan, fmt.Errorf("get state %s: %w", doc.ID, err)
	}

	// Same content under a new id: move the stored rows instead of re-embedding
	if state == nil {
		if oldID, ok := orphans[plan.hash]; ok {
			moved, err := s.store.RemapDocumentID(ctx, oldID, doc.ID)
			if err != nil {
				return plan, fmt.Errorf("remap %s to %s: %w", oldID, doc.ID, err)
			}
			if moved {
				logger.Debug("Remapped %s to %s", oldID, doc.ID)
				delete(orphans, plan.hash)
				summary.Remapped++
				metrics.DocumentsIndexedTotal.WithLabelValues(resultRemapped).Inc()
				if state, err = s.store.GetDocState(ctx, doc.ID); err != nil {
					return plan, fmt.Errorf("get state %s: %w", doc.ID, err)
				}
			}
		}
	}

	existing, err := s.store.GetDocChunkMap(ctx, doc.ID)
	if err != nil {
		return plan, fmt.Errorf("get chunk map %s: %w", doc.ID, err)
	}

	plan.changed = changedChunks(plan.chunks, existing, model)
	if state != nil && state.DocTextHash == plan.hash && len(plan.changed) == 0 &&
		len(existing) == len(plan.chunks) {
		plan.unchanged = true
		summary.Unchanged++
	}
	return plan, nil
}

// changedChunks returns the indexes of chunks that are new, whose text
// changed, or whose stored vector came from a different model.
func changedChunks(chunks []domain.Chunk, existing map[string]domain.ChunkFingerprint, model string) []int {
	var changed []int
	for i, ch := range chunks {
		fp, ok := existing[ch.ID]
		if !ok || fp.Hash != ch.TextHash || fp.ModelName != model {
			changed = append(changed, i)
		}
	}
	return changed
}

// embed embeds the plan's changed chunks in batches, checking for
// cancellation before each batch. Vectors are returned in plan.changed order.
func (s *IndexService) embed(
	ctx context.Context,
	plan *docPlan,
	opts domain.IndexOptions,
	onEmbedded func(),
) ([][]float32, error) {
	vectors := make([][]float32, 0, len(plan.changed))
	for from := 0; from < len(plan.changed); from += embedBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		to := min(from+embedBatchSize, len(plan.changed))
		texts := make([]string, 0, to-from)
		for _, idx := range plan.changed[from:to] {
			ch := plan.chunks[idx]
			texts = append(texts, chunker.Slice(plan.canonical, ch.StartChar, ch.EndChar))
		}

		batch, err := s.embedder.EmbedMany(ctx, texts, driven.EmbedOptions{
			Model:       opts.ModelName,
			Concurrency: opts.Concurrency,
			OnEmbedded:  func(int) { onEmbedded() },
		})
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// commit writes one document's chunks, stale deletions and state in a
// single transaction.
func (s *IndexService) commit(ctx context.Context, plan *docPlan, model string, vectors [][]float32) (err error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	fresh := make(map[int][]float32, len(plan.changed))
	for i, idx := range plan.changed {
		fresh[idx] = vectors[i]
	}

	keep := make([]string, 0, len(plan.chunks))
	for i, ch := range plan.chunks {
		if err = tx.UpsertChunk(ctx, ch, model, fresh[i]); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", ch.ID, err)
		}
		keep = append(keep, ch.ID)
	}

	if err = tx.DeleteChunksNotIn(ctx, plan.doc.ID, keep); err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}

	err = tx.UpsertDocState(ctx, domain.DocumentIndexState{
		DocID:       plan.doc.ID,
		DocTextHash: plan.hash,
		ChunkCount:  len(plan.chunks),
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	return tx.Commit()
}

// prune deletes stored documents absent from docs.
func (s *IndexService) prune(ctx context.Context, docs []domain.Document) (int, error) {
	present := make(map[string]bool, len(docs))
	for _, d := range docs {
		present[d.ID] = true
	}

	// Re-read: remapping may have moved some of the original states
	current, err := s.store.GetAllDocStates(ctx)
	if err != nil {
		return 0, fmt.Errorf("load document states: %w", err)
	}

	removed := 0
	for _, st := range current {
		if present[st.DocID] {
			continue
		}
		if err := s.store.DeleteDocument(ctx, st.DocID); err != nil {
			return removed, fmt.Errorf("prune %s: %w", st.DocID, err)
		}
		removed++
		metrics.DocumentsIndexedTotal.WithLabelValues(resultRemoved).Inc()
		logger.Debug("Pruned %s", st.DocID)
	}
	return removed, nil
}

// Status summarises the persisted index.
func (s *IndexService) Status(ctx context.Context) (*domain.IndexStatus, error) {
	states, err := s.store.GetAllDocStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load document states: %w", err)
	}
	stats, err := s.store.ChunkStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("chunk stats: %w", err)
	}

	status := &domain.IndexStatus{
		Documents: len(states),
		Models:    make(map[string]int),
	}
	for model, n := range stats {
		status.Chunks += n
		if model != "" {
			status.Models[model] = n
		}
	}
	for _, st := range states {
		if st.UpdatedAt.After(status.LastUpdated) {
			status.LastUpdated = st.UpdatedAt
		}
	}

	if s.meta != nil {
		model, _, err := s.meta.GetMeta(ctx, driven.MetaEmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("get active model: %w", err)
		}
		status.ActiveModel = model
		status.EmbeddedChunks = stats[model]
	}
	return status, nil
}

// orphanStates maps content hash to the id of each stored document that
// is absent from the batch. Only unambiguous hashes are kept.
func orphanStates(states []domain.DocumentIndexState, docs []domain.Document) map[string]string {
	present := make(map[string]bool, len(docs))
	for _, d := range docs {
		present[d.ID] = true
	}

	orphans := make(map[string]string)
	dup := make(map[string]bool)
	for _, st := range states {
		if present[st.DocID] {
			continue
		}
		if _, seen := orphans[st.DocTextHash]; seen {
			dup[st.DocTextHash] = true
			continue
		}
		orphans[st.DocTextHash] = st.DocID
	}
	for h := range dup {
		delete(orphans, h)
	}
	return orphans
}

// cancelled wraps a context error as an indexing cancellation.
func cancelled(err error) error {
	return domain.WrapError(domain.CodeIndexCancelled, "indexing cancelled", err)
}

// progressReporter serialises progress callbacks from embedding workers.
type progressReporter struct {
	mu       sync.Mutex
	fn       func(domain.Progress)
	done     int
	total    int
	docCount int
}

func newProgressReporter(fn func(domain.Progress), total, docCount int) *progressReporter {
	return &progressReporter{fn: fn, total: total, docCount: docCount}
}

func (r *progressReporter) embedded(docIndex int, docID string) {
	r.mu.Lock()
	r.done++
	r.mu.Unlock()
	r.emit("embedding", docIndex, docID)
}

func (r *progressReporter) emit(phase string, docIndex int, docID string) {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	pct := 100.0
	if r.total > 0 {
		pct = float64(r.done) / float64(r.total) * 100
	}
	r.fn(domain.Progress{
		Phase:    phase,
		Percent:  pct,
		Embedded: r.done,
		Total:    r.total,
		DocIndex: docIndex,
		DocCount: r.docCount,
		DocID:    docID,
	})
}
