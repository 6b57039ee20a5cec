package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
)

// Collection creation constants, tuned for the hybrid layout: original
// vectors on disk, int8-quantized vectors resident in RAM.
const (
	memmapThreshold   = 20000
	indexingThreshold = 20000
	defaultQuantile   = 0.95
)

// Registry ensures each logical collection exists and matches the configured
// embedder, rebuilding it when it does not.
//
// Initialize is NOT safe to run concurrently for the same collection:
// migration is three separate backend calls (delete, create, bind alias)
// with an observable transient window where the collection is absent.
// Callers must hold an external mutual-exclusion mechanism (process lock or
// leader election) around Initialize; the engine implements none, because a
// process-local mutex cannot protect multiple tenant-serving processes.
type Registry struct {
	backend  Backend
	logger   *logging.Logger
	embedder EmbedderIdentity
	snaps    *Snapshotter

	// persistSnapshots exports a collection before it is destroyed by
	// migration. Best-effort: a failed export is logged as a data-loss risk
	// and migration proceeds.
	persistSnapshots bool
	snapshotFolder   string
	quantile         float32
}

// NewRegistry creates a collection registry.
func NewRegistry(backend Backend, embedder EmbedderIdentity, snaps *Snapshotter, persistSnapshots bool, snapshotFolder string, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		backend:          backend,
		logger:           logger.Named("registry"),
		embedder:         embedder,
		snaps:            snaps,
		persistSnapshots: persistSnapshots,
		snapshotFolder:   snapshotFolder,
		quantile:         defaultQuantile,
	}
}

// Initialize ensures the collection exists and is compatible with the
// configured embedder, migrating it when it is not.
//
// Because collections are shared by every tenant, migration destroys every
// tenant's data in the collection, not just the tenant whose embedder change
// triggered it. The snapshot flag is the only mitigation.
func (r *Registry) Initialize(ctx context.Context, collection string) error {
	ctx, span := tracer.Start(ctx, "Registry.Initialize")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.String("embedder", r.embedder.Name),
		attribute.Int64("vector_size", int64(r.embedder.Size)),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	exists, err := r.backend.CollectionExists(ctx, collection)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", collection, err)
	}

	if exists {
		compatible, err := r.compatible(ctx, collection)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("checking embedder compatibility for %s: %w", collection, err)
		}
		if compatible {
			r.logger.Debug(ctx, "collection matches configured embedder", zap.String("collection", collection))
			span.SetStatus(codes.Ok, "compatible")
			return nil
		}

		r.logger.Warn(ctx, "collection was written by a different embedder, migrating",
			zap.String("collection", collection),
			zap.String("embedder", r.embedder.Name),
		)

		if r.persistSnapshots && r.snaps != nil {
			if err := r.snaps.SaveDump(ctx, collection, r.snapshotFolder); err != nil {
				// Data-loss risk: the collection is about to be destroyed
				// without an export.
				r.logger.Error(ctx, "snapshot before migration failed, proceeding without export",
					zap.String("collection", collection),
					zap.Error(err),
				)
			}
		}

		if err := r.backend.DeleteCollection(ctx, collection); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			MigrationsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("%w: deleting %s: %v", ErrMigrationFailed, collection, err)
		}
		r.logger.Warn(ctx, "collection deleted for migration", zap.String("collection", collection))
	}

	if err := r.create(ctx, collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		MigrationsTotal.WithLabelValues("error").Inc()
		return err
	}

	MigrationsTotal.WithLabelValues("success").Inc()
	span.SetStatus(codes.Ok, "success")
	return nil
}

// compatible reports whether the collection's configured vector size and
// bound alias both match the configured embedder. Same size alone is not
// enough: vectors of equal size from different embedders share no vector
// space.
func (r *Registry) compatible(ctx context.Context, collection string) (bool, error) {
	size, err := r.backend.CollectionVectorSize(ctx, collection)
	if err != nil {
		return false, err
	}
	if size != r.embedder.Size {
		return false, nil
	}

	aliases, err := r.backend.ListAliases(ctx, collection)
	if err != nil {
		return false, err
	}
	return slices.Contains(aliases, r.embedder.Alias(collection)), nil
}

// create builds a fresh collection sized to the embedder, binds its alias,
// and indexes the tenant field on remote backends.
func (r *Registry) create(ctx context.Context, collection string) error {
	r.logger.Warn(ctx, "creating collection",
		zap.String("collection", collection),
		zap.Uint64("vector_size", r.embedder.Size),
	)

	err := r.backend.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     r.embedder.Size,
			Distance: qdrant.Distance_Cosine,
		}),
		// hybrid mode: original vector on disk, quantized vector in RAM
		OptimizersConfig: &qdrant.OptimizersConfigDiff{
			MemmapThreshold:   qdrant.PtrOf(uint64(memmapThreshold)),
			IndexingThreshold: qdrant.PtrOf(uint64(indexingThreshold)),
		},
		QuantizationConfig: &qdrant.QuantizationConfig{
			Quantization: &qdrant.QuantizationConfig_Scalar{
				Scalar: &qdrant.ScalarQuantization{
					Type:      qdrant.QuantizationType_Int8,
					Quantile:  qdrant.PtrOf(r.quantile),
					AlwaysRam: qdrant.PtrOf(true),
				},
			},
		},
	})
	if err != nil {
		r.logger.Error(ctx, "creating collection failed",
			zap.String("collection", collection),
			zap.Error(err),
		)
		return fmt.Errorf("creating collection %s: %w", collection, err)
	}

	alias := r.embedder.Alias(collection)
	if err := r.backend.CreateAlias(ctx, alias, collection); err != nil {
		// An unaliased collection would be undetectable by the drift check.
		// Remove it before propagating.
		r.logger.Error(ctx, "binding alias failed, deleting just-created collection",
			zap.String("collection", collection),
			zap.String("alias", alias),
			zap.Error(err),
		)
		if delErr := r.backend.DeleteCollection(ctx, collection); delErr != nil {
			r.logger.Error(ctx, "cleanup of unaliased collection failed",
				zap.String("collection", collection),
				zap.Error(delErr),
			)
		}
		return fmt.Errorf("%w: binding alias %s: %v", ErrMigrationFailed, alias, err)
	}

	if r.backend.Remote() {
		// Index the tenant field so tenant-scoped filters stay cheap at
		// scale.
		if err := r.backend.CreateKeywordIndex(ctx, collection, payloadTenantKey); err != nil {
			r.logger.Error(ctx, "creating tenant payload index failed",
				zap.String("collection", collection),
				zap.Error(err),
			)
		}
	}

	return nil
}
