package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *ChatService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := NewChatService(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return svc
}

var testMessages = []driven.ChatMessage{
	{Role: "system", Content: "be brief"},
	{Role: "user", Content: "hi"},
}

func TestNewChatService_RejectsRemoteEndpoint(t *testing.T) {
	_, err := NewChatService(Config{BaseURL: "https://api.example.com"})
	assert.ErrorIs(t, err, domain.ErrNonLocalEndpointRejected)
}

func TestChat_RequestShape(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.1", req["model"])
		assert.Equal(t, false, req["stream"])
		assert.Equal(t, "json", req["format"])
		assert.Equal(t, map[string]any{"num_ctx": float64(8192), "temperature": 0.1}, req["options"])

		msgs := req["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, map[string]any{"role": "user", "content": "hi"}, msgs[1])

		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{\"ok\":true}"},"done":true}`))
	})

	out, err := svc.Chat(context.Background(), testMessages, driven.ChatOptions{
		Model: "llama3.1", JSON: true, NumCtx: 8192, Temperature: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestChat_OmitsFormatWhenNotJSON(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, hasFormat := req["format"]
		assert.False(t, hasFormat)
		_, _ = w.Write([]byte(`{"message":{"content":"plain"},"done":true}`))
	})

	out, err := svc.Chat(context.Background(), testMessages, driven.ChatOptions{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}

func TestChat_ModelNotFound(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"ghost\" not found, try pulling it first"}`))
	})

	_, err := svc.Chat(context.Background(), testMessages, driven.ChatOptions{Model: "ghost"})
	assert.ErrorIs(t, err, domain.ErrModelNotFound)
}

func TestChatStream_ConcatenatesDeltas(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		flusher := w.(http.Flusher)
		for _, line := range []string{
			`{"message":{"content":"The "},"done":false}`,
			``,
			`{"message":{"content":"answer"},"done":false}`,
			`{"message":{"content":" [1]"},"done":false}`,
			`{"message":{"content":""},"done":true}`,
			`{"message":{"content":"ignored after done"},"done":false}`,
		} {
			_, _ = w.Write([]byte(line + "\n"))
			flusher.Flush()
		}
	})

	var deltas []string
	out, err := svc.ChatStream(context.Background(), testMessages, driven.ChatOptions{Model: "m"}, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, "The answer [1]", out)
	assert.Equal(t, []string{"The ", "answer", " [1]"}, deltas)
}

func TestChatStream_ErrorLine(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"par"},"done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"error":"model 'm' not found"}` + "\n"))
	})

	out, err := svc.ChatStream(context.Background(), testMessages, driven.ChatOptions{Model: "m"}, nil)
	assert.ErrorIs(t, err, domain.ErrModelNotFound)
	assert.Equal(t, "par", out)
}

func TestChatStream_MalformedLine(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json\n"))
	})

	_, err := svc.ChatStream(context.Background(), testMessages, driven.ChatOptions{Model: "m"}, nil)
	assert.Equal(t, domain.CodeInternal, domain.CodeOf(err))
}

func TestChatStream_CancelAbortsRequest(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"start"},"done":false}` + "\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		_, err := svc.ChatStream(ctx, testMessages, driven.ChatOptions{Model: "m"}, func(d string) { got <- d })
		done <- err
	}()

	assert.Equal(t, "start", <-got)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
}
