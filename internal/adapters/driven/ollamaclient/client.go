// Package ollamaclient is the HTTP transport shared by the Ollama embedding
// and chat adapters. It enforces the local-only endpoint restriction and maps
// transport failures onto coded domain errors.
package ollamaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// DefaultTimeout bounds each request when no timeout is configured.
const DefaultTimeout = 120 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 4096

// Config holds configuration for the client.
type Config struct {
	// BaseURL is the Ollama API base URL. Only localhost and 127.0.0.1 are accepted.
	BaseURL string

	// Timeout is the per-request timeout (default: 120s).
	Timeout time.Duration
}

// Client performs JSON requests against a local Ollama server.
type Client struct {
	http    *http.Client
	baseURL string
}

// New validates the endpoint and creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = domain.DefaultBaseURL
	}
	if err := domain.ValidateLocalEndpoint(cfg.BaseURL); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		http: &http.Client{
			Timeout:       cfg.Timeout,
			CheckRedirect: checkRedirect,
		},
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
	}, nil
}

// checkRedirect applies the local-only restriction to every redirect hop.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if err := domain.ValidateLocalEndpoint(req.URL.String()); err != nil {
		return err
	}
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	return nil
}

// BaseURL returns the normalised endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// tagsResponse is the /api/tags response format.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the names of installed models via GET /api/tags.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, domain.WrapError(domain.CodeInternal, "decode model list", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

// IsReachable reports whether /api/tags answers successfully.
func (c *Client) IsReachable(ctx context.Context) bool {
	resp, err := c.Do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Do sends a request with an optional JSON body. A non-nil error is a coded
// *domain.Error, or the context's error when ctx was cancelled. On success
// the caller owns the response body.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, domain.WrapError(domain.CodeInternal, "marshal request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, domain.WrapError(domain.CodeInternal, "create request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ClassifyTransport(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, ClassifyResponse(resp.StatusCode, msg)
	}
	return resp, nil
}

// ClassifyTransport maps a failed round trip onto a coded error.
// Caller cancellation is returned unchanged so it is never reported as a
// network fault.
func ClassifyTransport(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	// A rejected redirect already carries its code
	var coded *domain.Error
	if errors.As(err, &coded) {
		return coded
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.CodeRequestTimeout, "ollama request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.WrapError(domain.CodeRequestTimeout, "ollama request timed out", err)
	}
	return domain.WrapError(domain.CodeServiceUnreachable, "ollama unreachable", err)
}

// errorBody is the JSON error envelope Ollama returns.
type errorBody struct {
	Error string `json:"error"`
}

// ClassifyResponse maps a non-200 response onto a coded error. Missing
// models are detected from the message, since Ollama reports them with
// both 404 and 500 depending on the endpoint.
func ClassifyResponse(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	}

	if IsModelNotFound(msg) {
		return domain.NewError(domain.CodeModelNotFound, msg)
	}
	return domain.NewError(domain.CodeInternal, fmt.Sprintf("ollama error (status %d): %s", status, msg))
}

// IsModelNotFound reports whether msg is Ollama's missing-model message.
func IsModelNotFound(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "model") &&
		(strings.Contains(lower, "not found") || strings.Contains(lower, "try pulling"))
}
