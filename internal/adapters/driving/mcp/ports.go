package mcp

import (
	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driving"
)

// Ports aggregates the ports the MCP server drives.
type Ports struct {
	// Search ranks stored chunks against a query.
	Search driving.SearchService

	// Jobs runs ask jobs. The ask tool is registered only when set.
	Jobs driving.JobManager

	// Indexer reports index status. The index_status tool and resource
	// are registered only when set.
	Indexer driving.Indexer

	// History lists finished jobs. Optional.
	History driven.JobHistoryStore

	// Session owns jobs started by this server.
	Session string

	// Lookup resolves document text for search results and for grounding
	// answers. Without it, ask cannot verify quotes and falls back.
	Lookup domain.DocumentLookup
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
