// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// ChatService runs chat completions against a local generation model.
type ChatService interface {
	// Chat returns the complete assistant message.
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)

	// ChatStream streams the assistant message, calling onDelta for each
	// fragment, and returns the concatenated text.
	ChatStream(ctx context.Context, messages []ChatMessage, opts ChatOptions, onDelta func(string)) (string, error)
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// ChatOptions configures a chat request.
type ChatOptions struct {
	// Model is the generation model name.
	Model string

	// JSON asks the server to constrain output to a JSON object (format: "json").
	JSON bool

	// NumCtx is the context window size. Zero leaves the server default.
	NumCtx int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64
}
