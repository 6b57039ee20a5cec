package memory

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/tenant"
)

var tracer = otel.Tracer("memoryd.memory")

// EngineConfig configures the memory engine.
type EngineConfig struct {
	// Embedder identifies the embedding model every vector in the engine's
	// collections must come from.
	Embedder EmbedderIdentity

	// Collections lists the logical collections the engine manages. Empty
	// means DefaultCollections.
	Collections []string

	// PersistSnapshots exports a collection before a migration destroys it.
	PersistSnapshots bool

	// SnapshotFolder is the local directory snapshot dumps are written to.
	SnapshotFolder string
}

// Validate checks the configuration.
func (c *EngineConfig) Validate() error {
	if c.Embedder.Name == "" {
		return fmt.Errorf("%w: embedder name is required", ErrInvalidConfig)
	}
	if c.Embedder.Size == 0 {
		return fmt.Errorf("%w: embedder vector size is required", ErrInvalidConfig)
	}
	for _, collection := range c.Collections {
		if err := ValidateCollectionName(collection); err != nil {
			return err
		}
	}
	if c.PersistSnapshots && c.SnapshotFolder == "" {
		return fmt.Errorf("%w: snapshot folder is required when snapshots are enabled", ErrInvalidConfig)
	}
	return nil
}

// Engine is the tenant-isolated vector memory engine. It owns the
// collection registry, the point store, the recall engine, the bulk
// scanner, and the snapshot manager over one shared backend.
//
// The engine holds no per-tenant state: tenancy is carried per call and
// enforced through mandatory filter terms.
type Engine struct {
	backend     Backend
	logger      *logging.Logger
	collections []string

	registry *Registry
	store    *Store
	recall   *Recall
	scanner  *Scanner
	snaps    *Snapshotter
}

// NewEngine wires the engine's components over the backend.
func NewEngine(cfg EngineConfig, backend Backend, logger *logging.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("memory")

	collections := cfg.Collections
	if len(collections) == 0 {
		collections = DefaultCollections()
	}

	snaps := NewSnapshotter(backend, http.DefaultClient, logger)
	scanner := NewScanner(backend, logger)

	return &Engine{
		backend:     backend,
		logger:      logger,
		collections: collections,
		registry:    NewRegistry(backend, cfg.Embedder, snaps, cfg.PersistSnapshots, cfg.SnapshotFolder, logger),
		store:       NewStore(backend, cfg.Embedder.Size, logger),
		recall:      NewRecall(backend, scanner, logger),
		scanner:     scanner,
		snaps:       snaps,
	}, nil
}

// InitializeAll ensures every managed collection exists and matches the
// configured embedder, migrating any that does not. Run once at startup,
// under external mutual exclusion when multiple processes share the backend.
func (e *Engine) InitializeAll(ctx context.Context) error {
	for _, collection := range e.collections {
		if err := e.registry.Initialize(ctx, collection); err != nil {
			return err
		}
	}
	e.logger.Info(ctx, "collections initialized", zap.Strings("collections", e.collections))
	return nil
}

// Collections returns the engine's managed collection names.
func (e *Engine) Collections() []string {
	return e.collections
}

// Registry returns the collection registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Store returns the point store.
func (e *Engine) Store() *Store { return e.store }

// Recall returns the recall engine.
func (e *Engine) Recall() *Recall { return e.recall }

// Scanner returns the bulk scanner.
func (e *Engine) Scanner() *Scanner { return e.scanner }

// Snapshotter returns the snapshot manager.
func (e *Engine) Snapshotter() *Snapshotter { return e.snaps }

// DestroyTenant removes every point the tenant owns across all managed
// collections. Collections themselves survive; other tenants' data is
// untouched.
func (e *Engine) DestroyTenant(ctx context.Context, tn tenant.Info) error {
	if err := tn.Validate(); err != nil {
		return err
	}
	for _, collection := range e.collections {
		if err := e.store.DestroyTenantPoints(ctx, tn, collection); err != nil {
			return err
		}
	}
	return nil
}

// Health checks backend liveness.
func (e *Engine) Health(ctx context.Context) error {
	return e.backend.Health(ctx)
}

// Close releases the backend connection.
func (e *Engine) Close() error {
	return e.backend.Close()
}
