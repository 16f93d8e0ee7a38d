// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - VectorStore: Chunk, vector and document state persistence (SQLite)
//   - EmbeddingService: Local embedding endpoint (Ollama)
//   - ConfigStore: Application configuration (TOML)
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - ChatService: Generation model. Without it, ask is unavailable.
//   - MetadataStore: Self-describing model names in the index.
//   - JobHistoryStore: Persisted job outcomes.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
