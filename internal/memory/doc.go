// Package memory implements the tenant-isolated vector memory engine.
//
// Collections are physically shared by every tenant; isolation is enforced
// by a mandatory tenant_id payload term conjoined into every read, write,
// and delete filter. The engine consumes precomputed embedding vectors,
// detects embedder drift via collection aliases, and rebuilds collections
// when the configured embedder no longer matches the one that wrote the
// data.
//
// Components share one Backend handle and hold no tenant-specific state:
//
//   - Registry: collection existence, compatibility, and migration
//   - Store: point writes, deletes, fetches, and metadata patches
//   - Recall: bounded quantization-aware similarity search
//   - Scanner: cursor-paginated bulk reads
//   - Snapshotter: best-effort export before destructive migrations
//
// Engine wires the components together over a single backend connection.
package memory
