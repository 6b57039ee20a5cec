package memory

import (
	"context"

	"github.com/qdrant/go-client/qdrant"
)

// Backend is the narrow surface the engine requires from a backing vector
// database. One Backend handle is shared by every component and must be safe
// for concurrent use; tenant isolation happens entirely in filter
// predicates, never through connection partitioning.
type Backend interface {
	// Collection lifecycle
	CollectionExists(ctx context.Context, name string) (bool, error)
	CollectionVectorSize(ctx context.Context, name string) (uint64, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, name string) error

	// Aliases record which embedder wrote a collection's vectors.
	ListAliases(ctx context.Context, collection string) ([]string, error)
	CreateAlias(ctx context.Context, alias, collection string) error

	// CreateKeywordIndex creates a payload index so tenant-scoped filtering
	// stays efficient at scale. Only meaningful on remote backends.
	CreateKeywordIndex(ctx context.Context, collection, field string) error

	// Point operations
	Upsert(ctx context.Context, collection string, points []*qdrant.PointStruct) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, collection string, selector *qdrant.PointsSelector) (*qdrant.UpdateResult, error)
	Scroll(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, collection string, filter *qdrant.Filter) (uint64, error)

	// Remote reports whether the backend is a remote service. Remote
	// backends support snapshots and payload indexes; embedded/local ones do
	// not.
	Remote() bool
	CreateSnapshot(ctx context.Context, collection string) (*qdrant.SnapshotDescription, error)
	ListSnapshots(ctx context.Context, collection string) ([]*qdrant.SnapshotDescription, error)
	DeleteSnapshot(ctx context.Context, collection, name string) error
	// SnapshotURL returns the download URL for a backend-side snapshot
	// artifact. Snapshot downloads are served over the REST surface only.
	SnapshotURL(collection, name string) string

	Health(ctx context.Context) error
	Close() error
}
