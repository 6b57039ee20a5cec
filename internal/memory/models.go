package memory

// Logical collection names. Shared physically across all tenants; the set a
// deployment uses is configurable, these are the conventional defaults.
const (
	CollectionEpisodic    = "episodic"
	CollectionDeclarative = "declarative"
	CollectionProcedural  = "procedural"
)

// DefaultCollections returns the conventional collection set.
func DefaultCollections() []string {
	return []string{CollectionEpisodic, CollectionDeclarative, CollectionProcedural}
}

// EmbedderIdentity identifies the model that produced a set of vectors.
// Name and dimensionality together decide whether a collection's existing
// vectors are compatible with the embedder currently configured: equal sizes
// from different models still occupy different vector spaces.
type EmbedderIdentity struct {
	// Name of the embedding model.
	Name string

	// Size is the vector dimensionality the model produces.
	Size uint64
}

// Alias returns the deterministic alias binding this embedder to a
// collection. The alias recorded against a physical collection is the drift
// detector: if it no longer equals Alias(collection) for the configured
// embedder, the collection was written by a different model.
func (e EmbedderIdentity) Alias(collection string) string {
	return e.Name + "_" + collection
}

// Point is the atomic stored unit: an id, a dense vector, and a payload of
// content plus free-form metadata. TenantID is set by the engine on every
// write; caller-supplied values are ignored.
type Point struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]any
	TenantID string
}

// RankedPoint is a Point annotated with a similarity score. A nil score
// marks a listed (bulk-read) result as opposed to a ranked search result.
type RankedPoint struct {
	Point
	Score *float32
}

// PointPayload is the caller-facing payload for batch ingestion.
type PointPayload struct {
	Content  string
	Metadata map[string]any
}

// BatchResult reports the outcome of a batched upsert.
type BatchResult struct {
	// IDs of the points in the batch, generated where the caller supplied
	// none.
	IDs []string

	// Applied is true when the backend reported the batch fully applied.
	// False is a soft-failure signal: ingestion pipelines log and continue.
	Applied bool
}
