package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for quackdas resources.
	uriScheme = "quackdas://"

	// jobsLimit is how many jobs the jobs resources list.
	jobsLimit = 20
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.Indexer != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "index/status",
			Name:        "index-status",
			Description: "Indexed documents, chunks and embedding models",
			MIMEType:    "application/json",
		}, s.handleStatusResource)
	}

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "jobs",
		Name:        "jobs",
		Description: "Recently finished index and ask jobs",
		MIMEType:    "application/json",
	}, s.handleJobsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "jobs/{kind}",
		Name:        "jobs-by-kind",
		Description: "Recently finished jobs of one kind (index or ask)",
		MIMEType:    "application/json",
	}, s.handleJobsResource)
}

// handleStatusResource returns the index status.
func (s *Server) handleStatusResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	st, err := s.ports.Indexer.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading index status: %w", err)
	}
	return jsonResource(req.Params.URI, statusOutput(st))
}

// jobInfo is the JSON form of a finished job.
type jobInfo struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Items     int    `json:"items"`
	Error     string `json:"error,omitempty"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at"`
}

// handleJobsResource lists recent jobs, optionally filtered by the kind in
// a quackdas://jobs/{kind} URI.
func (s *Server) handleJobsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	kind, ok := extractJobKind(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if s.ports.History == nil {
		return textResource(req.Params.URI, "[]"), nil
	}

	records, err := s.ports.History.History(ctx, kind, jobsLimit)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	infos := make([]jobInfo, len(records))
	for i, r := range records {
		infos[i] = jobInfo{
			ID:        r.ID,
			Kind:      string(r.Kind),
			Status:    string(r.Status),
			Items:     r.Items,
			Error:     r.Error,
			StartedAt: r.StartedAt.UTC().Format(time.RFC3339),
			EndedAt:   r.EndedAt.UTC().Format(time.RFC3339),
		}
	}
	return jsonResource(req.Params.URI, infos)
}

// extractJobKind parses quackdas://jobs or quackdas://jobs/{kind}. The bare
// form returns an empty kind, meaning all kinds.
func extractJobKind(uri string) (domain.JobKind, bool) {
	const base = uriScheme + "jobs"

	if uri == base {
		return "", true
	}
	rest, ok := strings.CutPrefix(uri, base+"/")
	if !ok {
		return "", false
	}
	kind := domain.JobKind(rest)
	if !kind.IsValid() {
		return "", false
	}
	return kind, true
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}
	return textResource(uri, string(data)), nil
}

func textResource(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		}},
	}
}
