// Package services implements the driving port interfaces.
// Services contain the core business logic: incremental indexing,
// retrieval and reranking, the grounded ask pipeline, background jobs
// and settings. They orchestrate calls to driven ports (adapters).
//
// Services are pure Go with no CGO or external dependencies.
package services
