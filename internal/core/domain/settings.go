package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Default inference endpoint and models.
const (
	DefaultBaseURL        = "http://127.0.0.1:11434"
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultLLMModel       = "llama3.1"
)

// localHosts are the only hosts an inference endpoint may resolve to.
var localHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
}

// ValidateLocalEndpoint rejects any base URL whose host is not localhost or
// 127.0.0.1. This is an egress restriction, not a default: there is no override.
func ValidateLocalEndpoint(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return WrapError(CodeNonLocalEndpointRejected, "unparseable endpoint "+rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewError(CodeNonLocalEndpointRejected, "endpoint must be http(s): "+rawURL)
	}
	host := strings.ToLower(u.Hostname())
	if !localHosts[host] {
		return NewError(CodeNonLocalEndpointRejected, fmt.Sprintf("host %q is not local", host))
	}
	return nil
}

// OllamaSettings configures the local inference endpoint.
type OllamaSettings struct {
	// BaseURL is the endpoint, restricted to localhost.
	BaseURL string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// RequestsPerSecond throttles embedding requests. Zero disables throttling.
	RequestsPerSecond float64
}

// EmbeddingSettings holds embedding model configuration.
type EmbeddingSettings struct {
	// Model is the embedding model name.
	Model string

	// Concurrency bounds in-flight embedding requests.
	Concurrency int
}

// LLMSettings holds generation model configuration.
type LLMSettings struct {
	// Model is the chat model name.
	Model string

	// NumCtx is the context window passed as options.num_ctx.
	NumCtx int
}

// ChunkingSettings bounds chunk sizes in characters.
type ChunkingSettings struct {
	MinChars     int
	MaxChars     int
	OverlapChars int
}

// SearchSettings holds retrieval defaults.
type SearchSettings struct {
	TopK       int
	CandidateK int
	Weights    RerankWeights
}

// AskSettings holds answer generation defaults.
type AskSettings struct {
	// Mode selects the strict JSON or loose marker output format.
	Mode AskMode

	// MinCitations is the citation floor for strict answers.
	MinCitations int

	// MaxRepairs bounds the repair loop.
	MaxRepairs int
}

// JobSettings configures background jobs.
type JobSettings struct {
	// CancelGrace is how long a cancelled job may run before it is abandoned.
	CancelGrace time.Duration
}

// AppSettings holds all application settings.
type AppSettings struct {
	Ollama    OllamaSettings
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Chunking  ChunkingSettings
	Search    SearchSettings
	Ask       AskSettings
	Jobs      JobSettings
}

// DefaultAppSettings returns settings with sensible defaults.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Ollama: OllamaSettings{
			BaseURL: DefaultBaseURL,
			Timeout: 120 * time.Second,
		},
		Embedding: EmbeddingSettings{
			Model:       DefaultEmbeddingModel,
			Concurrency: 4,
		},
		LLM: LLMSettings{
			Model:  DefaultLLMModel,
			NumCtx: 8192,
		},
		Chunking: ChunkingSettings{
			MinChars:     1200,
			MaxChars:     1800,
			OverlapChars: 200,
		},
		Search: SearchSettings{
			TopK:       8,
			CandidateK: 40,
			Weights:    DefaultRerankWeights(),
		},
		Ask: AskSettings{
			Mode:         AskModeStrict,
			MinCitations: 2,
			MaxRepairs:   2,
		},
		Jobs: JobSettings{
			CancelGrace: 5 * time.Second,
		},
	}
}

// Validate checks settings that would otherwise fail later and less clearly.
func (s AppSettings) Validate() error {
	if err := ValidateLocalEndpoint(s.Ollama.BaseURL); err != nil {
		return err
	}
	if s.Embedding.Model == "" {
		return fmt.Errorf("embedding model: %w", ErrInvalidInput)
	}
	if !s.Ask.Mode.IsValid() {
		return fmt.Errorf("ask mode %q: %w", s.Ask.Mode, ErrInvalidInput)
	}
	if s.Chunking.MinChars > s.Chunking.MaxChars {
		return fmt.Errorf("chunking min_chars exceeds max_chars: %w", ErrInvalidInput)
	}
	if !s.Search.Weights.IsZero() && !s.Search.Weights.SemanticDominant() {
		return fmt.Errorf("rerank weights must favour the semantic signal: %w", ErrInvalidInput)
	}
	return nil
}
