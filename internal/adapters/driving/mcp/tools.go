package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driving"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query to find passages"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of results to return (default from settings)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single retrieved chunk.
type SearchResultOutput struct {
	DocumentID  string  `json:"document_id"`
	ChunkID     string  `json:"chunk_id"`
	Title       string  `json:"title,omitempty"`
	Score       float64 `json:"score"`
	RerankScore float64 `json:"rerank_score"`
	Preview     string  `json:"preview"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from indexed documents"`
	Mode     string `json:"mode,omitempty" jsonschema:"strict (JSON claims with quotes) or loose (prose with markers)"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"number of chunks to retrieve"`
	Language string `json:"language,omitempty" jsonschema:"language to answer in"`
}

// AskOutput is the output schema for the ask tool. Every citation has been
// checked against the retrieved chunks.
type AskOutput struct {
	Mode      string               `json:"mode"`
	Claims    []domain.Claim       `json:"claims,omitempty"`
	Text      string               `json:"text,omitempty"`
	Citations []domain.CitationRef `json:"citations,omitempty"`
	Notes     string               `json:"notes,omitempty"`
	Fallback  bool                 `json:"fallback"`
	Sources   []domain.SourceEntry `json:"sources,omitempty"`
	Repairs   int                  `json:"repairs"`
}

// IndexStatusInput is the (empty) input schema for the index_status tool.
type IndexStatusInput struct{}

// IndexStatusOutput is the output schema for the index_status tool.
type IndexStatusOutput struct {
	Documents      int            `json:"documents"`
	Chunks         int            `json:"chunks"`
	EmbeddedChunks int            `json:"embedded_chunks"`
	ActiveModel    string         `json:"active_model"`
	Models         map[string]int `json:"models"`
	LastUpdated    string         `json:"last_updated,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over all indexed document chunks",
	}, s.handleSearch)

	if s.ports.Jobs != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ask",
			Description: "Answer a question from indexed documents with verified citations",
		}, s.handleAsk)
	}

	if s.ports.Indexer != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "index_status",
			Description: "Report indexed documents, chunks and embedding models",
		}, s.handleIndexStatus)
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	results, err := s.ports.Search.Search(ctx, input.Query, domain.SearchOptions{
		TopK:           input.TopK,
		Lookup:         s.ports.Lookup,
		KeepUnresolved: true,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}

	for i := range results {
		preview := results[i].Text
		if preview == "" {
			preview = results[i].Preview
		}
		output.Results[i] = SearchResultOutput{
			DocumentID:  results[i].DocID,
			ChunkID:     results[i].ID,
			Title:       results[i].Title,
			Score:       results[i].Score,
			RerankScore: results[i].RerankScore,
			Preview:     preview,
		}
	}

	return nil, output, nil
}

// handleAsk runs an ask job and waits for its terminal event. A cancelled
// request cancels the job.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	mode := domain.AskMode(strings.ToLower(input.Mode))
	if input.Mode != "" && !mode.IsValid() {
		return nil, AskOutput{}, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, input.Mode)
	}

	handle, err := s.ports.Jobs.Start(ctx, s.ports.Session, driving.JobRequest{
		Kind:     domain.JobKindAsk,
		Question: input.Question,
		AskOptions: domain.AskOptions{
			Mode:     mode,
			TopK:     input.TopK,
			Lookup:   s.ports.Lookup,
			Language: input.Language,
		},
	})
	if err != nil {
		return nil, AskOutput{}, err
	}

	done := ctx.Done()
	for {
		select {
		case <-done:
			done = nil
			if err := s.ports.Jobs.Cancel(s.ports.Session, domain.JobKindAsk); err != nil && !errors.Is(err, domain.ErrNoJob) {
				return nil, AskOutput{}, err
			}

		case ev, ok := <-handle.Events:
			if !ok {
				return nil, AskOutput{}, errors.New("ask job ended without a result")
			}
			if !ev.Type.IsTerminal() {
				continue
			}
			return askResult(ev)
		}
	}
}

func askResult(ev domain.JobEvent) (*mcp.CallToolResult, AskOutput, error) {
	switch ev.Type {
	case domain.EventDone:
		a, ok := ev.Payload.(*domain.AskAnswer)
		if !ok || a == nil {
			return nil, AskOutput{}, errors.New("ask job returned no answer")
		}
		return nil, AskOutput{
			Mode:      string(a.Mode),
			Claims:    a.Claims,
			Text:      a.AnswerText,
			Citations: a.CitationRefs,
			Notes:     a.Notes,
			Fallback:  a.Fallback,
			Sources:   a.Sources,
			Repairs:   a.Repairs,
		}, nil
	case domain.EventCancelled:
		return nil, AskOutput{}, domain.NewError(ev.Code, "ask cancelled")
	default:
		if err, ok := ev.Payload.(error); ok {
			return nil, AskOutput{}, err
		}
		return nil, AskOutput{}, domain.NewError(ev.Code, "ask failed")
	}
}

// handleIndexStatus handles the index_status tool invocation.
func (s *Server) handleIndexStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ IndexStatusInput,
) (*mcp.CallToolResult, IndexStatusOutput, error) {
	st, err := s.ports.Indexer.Status(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, err
	}
	return nil, statusOutput(st), nil
}

func statusOutput(st *domain.IndexStatus) IndexStatusOutput {
	out := IndexStatusOutput{
		Documents:      st.Documents,
		Chunks:         st.Chunks,
		EmbeddedChunks: st.EmbeddedChunks,
		ActiveModel:    st.ActiveModel,
		Models:         st.Models,
	}
	if out.Models == nil {
		out.Models = map[string]int{}
	}
	if !st.LastUpdated.IsZero() {
		out.LastUpdated = st.LastUpdated.UTC().Format("2006-01-02T15:04:05Z")
	}
	return out
}
