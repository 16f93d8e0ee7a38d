// Package domain defines the core entities for document indexing and
// grounded question answering.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A caller-supplied text record
//   - Chunk: An offset-addressed slice of a document, the unit of embedding
//   - DocumentIndexState: What was last committed for a document
//   - RetrievedChunk: A ranked search hit
//   - AskAnswer: A citation-grounded answer
//   - JobEvent: A message from a background job
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
