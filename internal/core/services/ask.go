package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driving"
	"github.com/s-edling/quackdas-sub000/internal/logger"
	"github.com/s-edling/quackdas-sub000/internal/metrics"
)

// Ensure AskService implements the interface.
var _ driving.AskService = (*AskService)(nil)

// maxPlannedChunks is the most chunks the planner may select.
const maxPlannedChunks = 3

// Answer outcomes, used as metric labels.
const (
	outcomeGrounded     = "grounded"
	outcomeInsufficient = "insufficient"
	outcomeFallback     = "fallback"
	outcomeNoContext    = "no_context"
	outcomeNoText       = "no_text"
)

// AskService answers questions from retrieved chunks, validating every
// citation and quote against the chunks the model was shown.
type AskService struct {
	chat     driven.ChatService
	search   driving.SearchService
	prompts  driven.PromptStore
	meta     driven.MetadataStore
	llm      domain.LLMSettings
	defaults domain.AskSettings
}

// NewAskService creates a new ask service. The metadata store is optional.
func NewAskService(
	chat driven.ChatService,
	search driving.SearchService,
	prompts driven.PromptStore,
	meta driven.MetadataStore,
	llm domain.LLMSettings,
	defaults domain.AskSettings,
) *AskService {
	return &AskService{
		chat:     chat,
		search:   search,
		prompts:  prompts,
		meta:     meta,
		llm:      llm,
		defaults: defaults,
	}
}

// Ask runs the pipeline. Malformed model output never produces an error;
// it degrades to a fallback answer. Network and model errors are returned
// with their codes. Cancellation returns an error matching domain.ErrAskCancelled.
//
// opts.MaxRepairs of zero uses the configured default; a negative value
// disables repair.
func (s *AskService) Ask(
	ctx context.Context, question string, opts domain.AskOptions, sink driving.AskSink,
) (*domain.AskAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	if s.chat == nil {
		return nil, domain.ErrLLMUnavailable
	}

	m := &askMachine{
		svc:      s,
		question: question,
		opts:     s.withDefaults(opts),
		sink:     sink,
	}
	m.maxRepairs = m.opts.MaxRepairs
	if m.maxRepairs < 0 {
		m.maxRepairs = 0
	}

	if s.meta != nil && s.llm.Model != "" {
		if err := s.meta.SetMeta(ctx, driven.MetaLLMModel, s.llm.Model); err != nil {
			logger.Warn("Failed to record LLM model: %v", err)
		}
	}

	answer, err := m.run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.WrapError(domain.CodeAskCancelled, "ask cancelled", ctx.Err())
		}
		return nil, err
	}
	return answer, nil
}

func (s *AskService) withDefaults(opts domain.AskOptions) domain.AskOptions {
	defaults := domain.DefaultAppSettings().Ask
	if !opts.Mode.IsValid() {
		opts.Mode = s.defaults.Mode
	}
	if !opts.Mode.IsValid() {
		opts.Mode = defaults.Mode
	}
	if opts.MinCitations <= 0 {
		opts.MinCitations = s.defaults.MinCitations
	}
	if opts.MinCitations <= 0 {
		opts.MinCitations = defaults.MinCitations
	}
	if opts.MaxRepairs == 0 {
		opts.MaxRepairs = s.defaults.MaxRepairs
	}
	return opts
}

// askState is a state of the ask pipeline.
type askState int

const (
	stateRetrieving askState = iota
	statePlanning
	stateGenerating
	stateValidating
	stateRepairing
	stateFallback
	stateDone
)

// askMachine runs one ask request. Every transition goes through run, and
// the repair count is bounded by maxRepairs.
type askMachine struct {
	svc      *AskService
	question string
	opts     domain.AskOptions
	sink     driving.AskSink

	maxRepairs int
	repairs    int

	retrieved []domain.RetrievedChunk
	grounded  []domain.RetrievedChunk
	used      []domain.RetrievedChunk
	skipped   int
	evidence  evidence
	output    string
	answer    *domain.AskAnswer
}

func (m *askMachine) run(ctx context.Context) (*domain.AskAnswer, error) {
	state := stateRetrieving
	for state != stateDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		switch state {
		case stateRetrieving:
			state, err = m.retrieve(ctx)
		case statePlanning:
			state, err = m.plan(ctx)
		case stateGenerating:
			state, err = m.generate(ctx)
		case stateValidating:
			state = m.validate()
		case stateRepairing:
			state, err = m.repair(ctx)
		case stateFallback:
			state = m.fallback()
		}
		if err != nil {
			return nil, err
		}
	}

	if m.skipped > 0 && len(m.grounded) > 0 {
		m.answer.Notes = joinNotes(m.answer.Notes, skippedTextNote(m.skipped))
	}
	m.answer.Repairs = m.repairs
	m.answer.UsedChunks = refs(m.used)
	m.phase(domain.PhaseDone)
	return m.answer, nil
}

func (m *askMachine) phase(p domain.AskPhase) {
	logger.Debug("Ask phase: %s", p)
	if m.sink.Phase != nil {
		m.sink.Phase(p)
	}
}

func (m *askMachine) retrieve(ctx context.Context) (askState, error) {
	m.phase(domain.PhaseRetrieving)

	if m.opts.Retrieved != nil {
		m.retrieved = m.opts.Retrieved
	} else {
		if m.svc.search == nil {
			return stateDone, domain.ErrEmbeddingUnavailable
		}
		// Unresolved hits are kept so they still appear in sources
		hits, err := m.svc.search.Search(ctx, m.question, domain.SearchOptions{
			TopK:           m.opts.TopK,
			CandidateK:     m.opts.CandidateK,
			Lookup:         m.opts.Lookup,
			KeepUnresolved: true,
		})
		if err != nil {
			return stateDone, fmt.Errorf("retrieve: %w", err)
		}
		m.retrieved = hits
	}

	if m.sink.Retrieved != nil {
		m.sink.Retrieved(m.retrieved)
	}

	if len(m.retrieved) == 0 {
		m.answer = &domain.AskAnswer{
			Mode:     m.opts.Mode,
			Notes:    "No indexed content matched the question.",
			Fallback: true,
			Sources:  []domain.SourceEntry{},
		}
		metrics.AskAnswersTotal.WithLabelValues(string(m.opts.Mode), outcomeNoContext).Inc()
		return stateDone, nil
	}

	// Only chunks with their real text can be shown to the model and
	// checked for quotes.
	for _, c := range m.retrieved {
		if c.Text == "" {
			m.skipped++
			continue
		}
		m.grounded = append(m.grounded, c)
	}
	if len(m.grounded) == 0 {
		logger.Debug("None of %d retrieved chunks has document text", len(m.retrieved))
		m.answer = &domain.AskAnswer{
			Mode:     m.opts.Mode,
			Notes:    noTextNote(m.skipped),
			Fallback: true,
			Sources:  sourceEntries(m.retrieved),
		}
		metrics.AskAnswersTotal.WithLabelValues(string(m.opts.Mode), outcomeNoText).Inc()
		return stateDone, nil
	}
	if m.skipped > 0 {
		logger.Debug("Skipping %d retrieved chunk(s) without document text", m.skipped)
	}
	return statePlanning, nil
}

// plan asks the model for the most relevant retrieved chunks. Ids outside
// the retrieved set are dropped; an empty selection falls back to all.
func (m *askMachine) plan(ctx context.Context) (askState, error) {
	m.phase(domain.PhasePlanning)
	m.used = m.grounded

	system, err := m.svc.prompts.Load(driven.PromptPlanner)
	if err != nil {
		return stateDone, fmt.Errorf("load planner prompt: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nCandidate chunks:\n", m.question)
	for _, c := range m.grounded {
		fmt.Fprintf(&b, "\n- docId=%s chunkId=%s title=%q\n  %s\n", c.DocID, c.ID, c.Title, c.Preview)
	}

	out, err := m.svc.chat.Chat(ctx, []driven.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: b.String()},
	}, m.chatOptions(true))
	if err != nil {
		return stateDone, fmt.Errorf("plan: %w", err)
	}

	byRef := make(map[domain.ChunkRef]domain.RetrievedChunk, len(m.grounded))
	for _, c := range m.grounded {
		byRef[c.Ref()] = c
	}

	var planned []domain.RetrievedChunk
	picked := make(map[domain.ChunkRef]bool)
	for _, ref := range parsePlan(out) {
		c, ok := byRef[ref]
		if !ok || picked[ref] {
			continue
		}
		picked[ref] = true
		planned = append(planned, c)
		if len(planned) == maxPlannedChunks {
			break
		}
	}

	if len(planned) > 0 {
		m.used = planned
	} else {
		logger.Debug("Planner selected nothing usable, using all %d chunks", len(m.grounded))
	}
	m.evidence = newEvidence(m.used)
	return stateGenerating, nil
}

func (m *askMachine) generate(ctx context.Context) (askState, error) {
	m.phase(domain.PhaseGenerating)

	msgs, err := m.messages("")
	if err != nil {
		return stateDone, err
	}

	out, err := m.svc.chat.ChatStream(ctx, msgs, m.chatOptions(m.opts.Mode == domain.AskModeStrict), m.sink.Stream)
	if err != nil {
		return stateDone, fmt.Errorf("generate: %w", err)
	}
	m.output = out
	return stateValidating, nil
}

// validate parses and checks the latest output. Parse failures lead to a
// repair while attempts remain, then to the fallback answer.
func (m *askMachine) validate() askState {
	m.phase(domain.PhaseValidating)

	var (
		v   validation
		err error
	)
	if m.opts.Mode == domain.AskModeStrict {
		var p *strictPayload
		if p, err = parseStrictAnswer(m.output); err == nil {
			v = validateStrict(p, m.evidence)
		}
	} else {
		var a *looseAnswer
		if a, err = parseLooseAnswer(m.output); err == nil {
			v = validateLoose(a, m.evidence)
		}
	}

	if err != nil {
		logger.Debug("Answer rejected: %v", err)
		if m.repairs < m.maxRepairs {
			return stateRepairing
		}
		return stateFallback
	}

	if v.dropped > 0 {
		logger.Debug("Dropped %d unverifiable citations or quotes", v.dropped)
	}

	m.answer = &domain.AskAnswer{Mode: m.opts.Mode, Notes: v.notes}
	if v.citations < m.opts.MinCitations {
		floor := domain.WrapError(domain.CodeCitationFloorNotMet, "answer emptied",
			fmt.Errorf("%d of %d citations verified", v.citations, m.opts.MinCitations))
		logger.Debug("%v", floor)
		m.answer.Notes = joinNotes(insufficientGroundingNote(v.citations, m.opts.MinCitations), v.notes)
		m.answer.Sources = sourceEntries(m.used)
		metrics.AskAnswersTotal.WithLabelValues(string(m.opts.Mode), outcomeInsufficient).Inc()
		return stateDone
	}

	m.answer.Claims = v.claims
	m.answer.AnswerText = v.text
	m.answer.CitationRefs = v.refs
	metrics.AskAnswersTotal.WithLabelValues(string(m.opts.Mode), outcomeGrounded).Inc()
	return stateDone
}

// repair re-prompts with the schema restated. The invalid output is not
// sent back. The last permitted attempt uses the minimal skeleton prompt.
func (m *askMachine) repair(ctx context.Context) (askState, error) {
	m.phase(domain.PhaseRepairing)
	m.repairs++
	metrics.AskRepairsTotal.Inc()

	name := driven.PromptRepair
	if m.repairs == m.maxRepairs && m.maxRepairs > 1 {
		name = driven.PromptRepairFinal
	}
	repairPrompt, err := m.svc.prompts.Load(name)
	if err != nil {
		return stateDone, fmt.Errorf("load repair prompt: %w", err)
	}

	msgs, err := m.messages(repairPrompt)
	if err != nil {
		return stateDone, err
	}

	out, err := m.svc.chat.Chat(ctx, msgs, m.chatOptions(m.opts.Mode == domain.AskModeStrict))
	if err != nil {
		return stateDone, fmt.Errorf("repair: %w", err)
	}
	m.output = out
	return stateValidating, nil
}

// fallback builds the no-answer result from the retrieved chunks alone.
func (m *askMachine) fallback() askState {
	m.answer = &domain.AskAnswer{
		Mode:     m.opts.Mode,
		Notes:    fallbackNote(m.repairs),
		Fallback: true,
		Sources:  sourceEntries(m.retrieved),
	}
	metrics.AskAnswersTotal.WithLabelValues(string(m.opts.Mode), outcomeFallback).Inc()
	return stateDone
}

// messages builds the generation conversation, appending extra to the
// system prompt when set.
func (m *askMachine) messages(extra string) ([]driven.ChatMessage, error) {
	name := driven.PromptAnswerStrict
	if m.opts.Mode == domain.AskModeLoose {
		name = driven.PromptAnswerLoose
	}
	system, err := m.svc.prompts.Load(name)
	if err != nil {
		return nil, fmt.Errorf("load answer prompt: %w", err)
	}
	if m.opts.Language != "" {
		system += fmt.Sprintf("\n\nWrite the answer in %s. Quotes stay in the language of the source.", m.opts.Language)
	}
	if extra != "" {
		system += "\n\n" + extra
	}

	var b strings.Builder
	b.WriteString("Sources:\n")
	for _, c := range m.used {
		fmt.Fprintf(&b, "\n[docId=%s chunkId=%s]", c.DocID, c.ID)
		if c.Title != "" {
			fmt.Fprintf(&b, " %s", c.Title)
		}
		fmt.Fprintf(&b, "\n%s\n", c.Text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nMinimum distinct citations: %d\n", m.question, m.opts.MinCitations)

	return []driven.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: b.String()},
	}, nil
}

func (m *askMachine) chatOptions(jsonOut bool) driven.ChatOptions {
	return driven.ChatOptions{
		Model:  m.svc.llm.Model,
		JSON:   jsonOut,
		NumCtx: m.svc.llm.NumCtx,
	}
}

func refs(chunks []domain.RetrievedChunk) []domain.ChunkRef {
	out := make([]domain.ChunkRef, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Ref())
	}
	return out
}

func joinNotes(notes ...string) string {
	var parts []string
	for _, n := range notes {
		if n = strings.TrimSpace(n); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, " ")
}

// IsCancelled reports whether err is an index or ask cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, domain.ErrIndexCancelled) || errors.Is(err, domain.ErrAskCancelled)
}
