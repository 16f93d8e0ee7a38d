package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
)

// ==================== Embedding ====================

// mockEmbedder produces bag-of-words vectors so that texts sharing words
// are similar. It records every text it embeds.
type mockEmbedder struct {
	mu     sync.Mutex
	texts  []string
	models []string
	err    error

	// beforeEmbed runs before each text is embedded.
	beforeEmbed func(text string)
}

const mockDim = 64

func (m *mockEmbedder) ListModels(_ context.Context) ([]string, error) {
	return m.models, nil
}

func (m *mockEmbedder) IsReachable(_ context.Context) bool {
	return m.err == nil
}

func (m *mockEmbedder) Embed(ctx context.Context, _ string, text string) ([]float32, error) {
	if m.beforeEmbed != nil {
		m.beforeEmbed(text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}

	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	return bagOfWords(text), nil
}

func (m *mockEmbedder) EmbedMany(ctx context.Context, texts []string, opts driven.EmbedOptions) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, opts.Model, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
		if opts.OnEmbedded != nil {
			opts.OnEmbedded(i)
		}
	}
	return out, nil
}

func (m *mockEmbedder) embedded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func bagOfWords(text string) []float32 {
	v := make([]float32, mockDim)
	for _, tok := range Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%mockDim]++
	}
	return v
}

// ==================== Chat ====================

// mockChat replays scripted replies in order. Once exhausted it repeats
// the last reply.
type mockChat struct {
	mu       sync.Mutex
	replies  []string
	calls    [][]driven.ChatMessage
	jsonReqs []bool
	err      error

	// block makes each call wait for ctx to be cancelled.
	block bool
}

func (m *mockChat) next(ctx context.Context, msgs []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, msgs)
	m.jsonReqs = append(m.jsonReqs, opts.JSON)
	i := len(m.calls) - 1
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	return m.replies[i], nil
}

func (m *mockChat) Chat(ctx context.Context, msgs []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	return m.next(ctx, msgs, opts)
}

func (m *mockChat) ChatStream(
	ctx context.Context, msgs []driven.ChatMessage, opts driven.ChatOptions, onDelta func(string),
) (string, error) {
	reply, err := m.next(ctx, msgs, opts)
	if err != nil {
		return "", err
	}
	// Deliver in two fragments to exercise concatenation
	half := len(reply) / 2
	if onDelta != nil && reply != "" {
		onDelta(reply[:half])
		onDelta(reply[half:])
	}
	return reply, nil
}

func (m *mockChat) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// lastUserMessage returns the content of the last user message of call i.
func (m *mockChat) lastUserMessage(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.calls[i]
	for j := len(msgs) - 1; j >= 0; j-- {
		if msgs[j].Role == "user" {
			return msgs[j].Content
		}
	}
	return ""
}

// ==================== Prompts ====================

// mockPrompts returns the prompt name as its template.
type mockPrompts struct{}

func (mockPrompts) Load(name string) (string, error) {
	return "PROMPT:" + name, nil
}

func (mockPrompts) Reload() {}

// ==================== Fixtures ====================

// paragraphs builds n paragraphs of 98 characters separated by blank lines.
// Paragraph i starts with "Paragraph <tag><iii>".
func paragraphs(n int, tag string) string {
	parts := make([]string, n)
	for i := range parts {
		head := fmt.Sprintf("Paragraph %s%03d ", tag, i)
		body := strings.Repeat("lorem ", 20)
		parts[i] = (head + body)[:97] + "."
	}
	return strings.Join(parts, "\n\n")
}

var testChunking = domain.ChunkingSettings{MinChars: 1200, MaxChars: 1800, OverlapChars: 200}
