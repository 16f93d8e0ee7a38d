// Package ollama provides a chat service adapter using Ollama.
package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/s-edling/quackdas-sub000/internal/adapters/driven/ollamaclient"
	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
	"github.com/s-edling/quackdas-sub000/internal/metrics"
)

// Ensure ChatService implements the interface.
var _ driven.ChatService = (*ChatService)(nil)

// maxLineSize bounds one NDJSON line of a streamed response.
const maxLineSize = 1 << 20

// Config holds configuration for the Ollama chat service.
type Config struct {
	// BaseURL is the Ollama API base URL, restricted to localhost.
	BaseURL string

	// Timeout is the per-request timeout, covering the whole stream.
	Timeout time.Duration
}

// ChatService runs chat completions using Ollama.
type ChatService struct {
	client *ollamaclient.Client
}

// chatRequest is the Ollama /api/chat request format.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  *options      `json:"options,omitempty"`
}

// options holds generation parameters.
type options struct {
	NumCtx      int      `json:"num_ctx,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// chatMessage is the Ollama chat message format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is one /api/chat response object, or one stream line.
type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// NewChatService creates a new Ollama chat service.
// Non-local base URLs are rejected with NON_LOCAL_ENDPOINT_REJECTED.
func NewChatService(cfg Config) (*ChatService, error) {
	client, err := ollamaclient.New(ollamaclient.Config{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	return &ChatService{client: client}, nil
}

// Chat returns the complete assistant message of a non-streaming request.
func (s *ChatService) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (text string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveChat(start, err) }()

	resp, err := s.client.Do(ctx, http.MethodPost, "/api/chat", newChatRequest(messages, opts, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		if ctx.Err() != nil {
			return "", ollamaclient.ClassifyTransport(ctx, err)
		}
		return "", domain.WrapError(domain.CodeInternal, "decode chat response", err)
	}
	if chatResp.Error != "" {
		return "", ollamaclient.ClassifyResponse(http.StatusOK, []byte(chatResp.Error))
	}
	return chatResp.Message.Content, nil
}

// ChatStream reads newline-delimited JSON chunks, forwarding each content
// delta to onDelta, and returns the concatenated message.
func (s *ChatService) ChatStream(
	ctx context.Context,
	messages []driven.ChatMessage,
	opts driven.ChatOptions,
	onDelta func(string),
) (text string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveChat(start, err) }()

	resp, err := s.client.Do(ctx, http.MethodPost, "/api/chat", newChatRequest(messages, opts, true))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return b.String(), domain.WrapError(domain.CodeInternal, "decode chat stream", err)
		}
		if chunk.Error != "" {
			return b.String(), ollamaclient.ClassifyResponse(http.StatusOK, []byte(chunk.Error))
		}
		if delta := chunk.Message.Content; delta != "" {
			b.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
		if chunk.Done {
			return b.String(), nil
		}
	}

	if err := scanner.Err(); err != nil {
		return b.String(), ollamaclient.ClassifyTransport(ctx, err)
	}
	// Stream closed without a done marker; keep what arrived
	return b.String(), nil
}

func newChatRequest(messages []driven.ChatMessage, opts driven.ChatOptions, stream bool) chatRequest {
	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}

	req := chatRequest{
		Model:    opts.Model,
		Messages: msgs,
		Stream:   stream,
		Options:  &options{NumCtx: opts.NumCtx},
	}
	if opts.JSON {
		req.Format = "json"
	}
	if opts.Temperature > 0 {
		t := opts.Temperature
		req.Options.Temperature = &t
	}
	return req
}
