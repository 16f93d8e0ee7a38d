// Package sqlite provides a SQLite-based implementation of the index's
// driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements several store interfaces
// through a single database connection:
//
//   - VectorStore: Chunks, embedding vectors and per-document index state
//   - MetadataStore: Generic key-value settings (active model names)
//   - JobHistoryStore: Outcomes of finished background jobs
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Vectors
//
// Embeddings are stored as BLOBs of 4-byte little-endian float32 values.
//
// # Data Location
//
// By default, the database is stored at ~/.quackdas/data/index.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode. A document's chunks, stale-chunk deletions and state are
// written in one transaction.
package sqlite
