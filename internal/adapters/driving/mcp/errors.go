// Package mcp provides an MCP (Model Context Protocol) server adapter for quackdas.
// It lets AI assistants search the local index and ask grounded questions.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")
