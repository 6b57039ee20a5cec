package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
)

// BackendConfig configures the Qdrant-backed Backend.
type BackendConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334 (gRPC), not 6333 (HTTP)
	Port int

	// RESTPort is the Qdrant HTTP port. Used only to build snapshot download
	// URLs; every other call goes over gRPC.
	// Default: 6333
	RESTPort int

	// UseTLS enables TLS encryption for the gRPC connection.
	UseTLS bool

	// APIKey is the optional API key for authentication.
	APIKey string

	// RequestTimeout is the timeout applied to each backend call.
	// Default: 30 seconds
	RequestTimeout time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB (large batch upserts)
	MaxMessageSize int

	// MaxRetries is the number of retry attempts for transient failures.
	// Default: 3
	MaxRetries int
}

// ApplyDefaults sets default values for unset fields.
func (c *BackendConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.RESTPort == 0 {
		c.RESTPort = 6333
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024 // 50MB
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate validates the backend configuration.
func (c *BackendConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.RESTPort <= 0 || c.RESTPort > 65535 {
		return fmt.Errorf("%w: invalid rest port: %d", ErrInvalidConfig, c.RESTPort)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: invalid max message size: %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	return nil
}

// QdrantBackend implements Backend using Qdrant's official Go gRPC client.
// The underlying client multiplexes concurrent requests over one connection
// and is safe for concurrent use.
type QdrantBackend struct {
	client *qdrant.Client
	config BackendConfig
	logger *logging.Logger
}

// NewQdrantBackend creates a Qdrant-backed Backend and verifies connectivity
// with a health check.
func NewQdrantBackend(config BackendConfig, logger *logging.Logger) (*QdrantBackend, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	qdrantConfig := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	}

	// For non-TLS connections, explicitly set insecure credentials
	if !config.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	backend := &QdrantBackend{
		client: client,
		config: config,
		logger: logger.Named("qdrant"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.RequestTimeout)
	defer cancel()

	if err := backend.Health(ctx); err != nil {
		_ = client.Close()
		logger.Error(ctx, "qdrant health check failed",
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	logger.Info(ctx, "qdrant connection established",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
	)

	return backend, nil
}

// Health performs a health check on the Qdrant connection.
func (b *QdrantBackend) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	if _, err := b.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// CollectionExists checks if a collection exists.
func (b *QdrantBackend) CollectionExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	var exists bool
	err := b.retryOperation(ctx, "collection_exists", func() error {
		info, err := b.client.GetCollectionInfo(ctx, name)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CollectionVectorSize returns the configured vector dimensionality of a
// collection.
func (b *QdrantBackend) CollectionVectorSize(ctx context.Context, name string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	var size uint64
	err := b.retryOperation(ctx, "collection_vector_size", func() error {
		info, err := b.client.GetCollectionInfo(ctx, name)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				return ErrCollectionNotFound
			}
			return err
		}
		size = info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}

// CreateCollection creates a new collection with the given configuration.
func (b *QdrantBackend) CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	return b.retryOperation(ctx, "create_collection", func() error {
		return b.client.CreateCollection(ctx, req)
	})
}

// DeleteCollection deletes a collection and all its points, for every
// tenant.
func (b *QdrantBackend) DeleteCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	return b.retryOperation(ctx, "delete_collection", func() error {
		return b.client.DeleteCollection(ctx, name)
	})
}

// ListAliases returns the alias names bound to a collection.
func (b *QdrantBackend) ListAliases(ctx context.Context, collection string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	var aliases []string
	err := b.retryOperation(ctx, "list_aliases", func() error {
		result, err := b.client.ListCollectionAliases(ctx, collection)
		if err != nil {
			return err
		}
		aliases = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return aliases, nil
}

// CreateAlias binds an alias name to a collection.
func (b *QdrantBackend) CreateAlias(ctx context.Context, alias, collection string) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	return b.retryOperation(ctx, "create_alias", func() error {
		return b.client.CreateAlias(ctx, alias, collection)
	})
}

// CreateKeywordIndex creates a keyword payload index on a field.
func (b *QdrantBackend) CreateKeywordIndex(ctx context.Context, collection, field string) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	return b.retryOperation(ctx, "create_keyword_index", func() error {
		_, err := b.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
}

// Upsert inserts or updates points in a single batched call.
func (b *QdrantBackend) Upsert(ctx context.Context, collection string, points []*qdrant.PointStruct) (*qdrant.UpdateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	var result *qdrant.UpdateResult
	err := b.retryOperation(ctx, "upsert", func() error {
		res, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes points matching the selector.
func (b *QdrantBackend) Delete(ctx context.Context, collection string, selector *qdrant.PointsSelector) (*qdrant.UpdateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	var result *qdrant.UpdateResult
	err := b.retryOperation(ctx, "delete", func() error {
		res, err := b.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points:         selector,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Scroll returns one cursor page of points plus the next-page cursor. A nil
// cursor means end of results.
func (b *QdrantBackend) Scroll(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	var (
		points []*qdrant.RetrievedPoint
		next   *qdrant.PointId
	)
	err := b.retryOperation(ctx, "scroll", func() error {
		// The convenience wrapper drops the next-page offset, so go through
		// the raw points service here.
		resp, err := b.client.GetPointsClient().Scroll(ctx, req)
		if err != nil {
			return err
		}
		points = resp.GetResult()
		next = resp.GetNextPageOffset()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return points, next, nil
}

// Query performs an approximate nearest-neighbor query.
func (b *QdrantBackend) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	var results []*qdrant.ScoredPoint
	err := b.retryOperation(ctx, "query", func() error {
		res, err := b.client.Query(ctx, req)
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Count returns the number of points matching the filter.
func (b *QdrantBackend) Count(ctx context.Context, collection string, filter *qdrant.Filter) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	var count uint64
	err := b.retryOperation(ctx, "count", func() error {
		res, err := b.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: collection,
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		count = res
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Remote reports whether the backend is a remote service. The gRPC-backed
// Qdrant backend always is.
func (b *QdrantBackend) Remote() bool {
	return true
}

// CreateSnapshot requests a backend-side snapshot of a collection.
func (b *QdrantBackend) CreateSnapshot(ctx context.Context, collection string) (*qdrant.SnapshotDescription, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	var desc *qdrant.SnapshotDescription
	err := b.retryOperation(ctx, "create_snapshot", func() error {
		res, err := b.client.CreateSnapshot(ctx, collection)
		if err != nil {
			return err
		}
		desc = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return desc, nil
}

// ListSnapshots lists backend-side snapshot artifacts for a collection.
func (b *QdrantBackend) ListSnapshots(ctx context.Context, collection string) ([]*qdrant.SnapshotDescription, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	var descs []*qdrant.SnapshotDescription
	err := b.retryOperation(ctx, "list_snapshots", func() error {
		res, err := b.client.ListSnapshots(ctx, collection)
		if err != nil {
			return err
		}
		descs = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return descs, nil
}

// DeleteSnapshot removes a backend-side snapshot artifact.
func (b *QdrantBackend) DeleteSnapshot(ctx context.Context, collection, name string) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	return b.retryOperation(ctx, "delete_snapshot", func() error {
		return b.client.DeleteSnapshot(ctx, collection, name)
	})
}

// SnapshotURL builds the REST download URL for a snapshot artifact.
func (b *QdrantBackend) SnapshotURL(collection, name string) string {
	scheme := "http"
	if b.config.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/collections/%s/snapshots/%s", scheme, b.config.Host, b.config.RESTPort, collection, name)
}

// Close closes the client connection.
func (b *QdrantBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff for transient
// failures. Validation and not-found errors are never retried.
func (b *QdrantBackend) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := time.Second

	for attempt := 0; attempt <= b.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if !IsTransientError(err) {
			return err
		}

		if attempt == b.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, b.config.MaxRetries, err)
		}

		b.logger.Debug(ctx, "retrying operation after transient error",
			zap.String("operation", operationName),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// Ensure QdrantBackend implements Backend.
var _ Backend = (*QdrantBackend)(nil)
