package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/tenant"
)

// Store performs tenant-scoped point writes, deletes, fetches, and metadata
// patches. Every operation injects or conjoins the tenant term; callers
// cannot write or touch another tenant's points through any Store path.
type Store struct {
	backend    Backend
	logger     *logging.Logger
	vectorSize uint64
}

// NewStore creates a point store. vectorSize is the configured embedder
// dimensionality; vectors of any other size are rejected before I/O.
func NewStore(backend Backend, vectorSize uint64, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		backend:    backend,
		logger:     logger.Named("store"),
		vectorSize: vectorSize,
	}
}

// AddPoint stores a single point. An empty id generates one. The tenant term
// is injected unconditionally; any tenant value in metadata is irrelevant to
// isolation since the filter term lives outside the metadata map.
//
// Returns (nil, nil) when the backend reports the write was not fully
// applied: a soft-failure signal, so bulk ingestion can log and continue
// rather than abort a batch on one bad point.
func (s *Store) AddPoint(ctx context.Context, tn tenant.Info, collection, content string, vector []float32, metadata map[string]any, id string) (*Point, error) {
	ctx, span := tracer.Start(ctx, "Store.AddPoint")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := tn.Validate(); err != nil {
		return nil, err
	}
	if uint64(len(vector)) != s.vectorSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVectorSizeMismatch, len(vector), s.vectorSize)
	}
	if id == "" {
		id = uuid.NewString()
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: buildPayload(content, metadata, tn.ID),
	}

	result, err := s.backend.Upsert(ctx, collection, []*qdrant.PointStruct{point})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("upserting point to %s: %w", collection, err)
	}

	if result.GetStatus() != qdrant.UpdateStatus_Completed {
		WriteRejectionsTotal.WithLabelValues(collection).Inc()
		s.logger.Warn(ctx, "write not fully applied",
			zap.String("collection", collection),
			zap.String("id", id),
			zap.String("status", result.GetStatus().String()),
		)
		return nil, nil
	}

	PointsUpsertedTotal.WithLabelValues(collection).Add(1)
	span.SetStatus(codes.Ok, "success")
	return &Point{ID: id, Vector: vector, Content: content, Metadata: metadata, TenantID: tn.ID}, nil
}

// AddPoints upserts a batch of points in one network call; this is the
// ingestion hot path and never issues per-item round trips. When ids are
// supplied they must match payloads and vectors in length; the mismatch is
// reported synchronously, before any I/O.
func (s *Store) AddPoints(ctx context.Context, tn tenant.Info, collection string, payloads []PointPayload, vectors [][]float32, ids []string) (*BatchResult, error) {
	ctx, span := tracer.Start(ctx, "Store.AddPoints")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("batch_size", len(payloads)),
	)

	if err := tn.Validate(); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = make([]string, len(payloads))
		for i := range ids {
			ids[i] = uuid.NewString()
		}
	}
	if len(ids) != len(payloads) || len(ids) != len(vectors) {
		return nil, ErrBatchLengthMismatch
	}
	for i, vector := range vectors {
		if uint64(len(vector)) != s.vectorSize {
			return nil, fmt.Errorf("%w: vector %d has size %d, want %d", ErrVectorSizeMismatch, i, len(vector), s.vectorSize)
		}
	}

	points := make([]*qdrant.PointStruct, len(payloads))
	for i, payload := range payloads {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(ids[i]),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: buildPayload(payload.Content, payload.Metadata, tn.ID),
		}
	}

	result, err := s.backend.Upsert(ctx, collection, points)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("upserting batch to %s: %w", collection, err)
	}

	applied := result.GetStatus() == qdrant.UpdateStatus_Completed
	if applied {
		PointsUpsertedTotal.WithLabelValues(collection).Add(float64(len(points)))
	} else {
		WriteRejectionsTotal.WithLabelValues(collection).Inc()
		s.logger.Warn(ctx, "batch write not fully applied",
			zap.String("collection", collection),
			zap.Int("batch_size", len(points)),
			zap.String("status", result.GetStatus().String()),
		)
	}

	span.SetStatus(codes.Ok, "success")
	return &BatchResult{IDs: ids, Applied: applied}, nil
}

// DeletePoints removes points by id. The id condition is conjoined with the
// tenant term, so ids belonging to another tenant are silently ignored.
func (s *Store) DeletePoints(ctx context.Context, tn tenant.Info, collection string, ids []string) error {
	ctx, span := tracer.Start(ctx, "Store.DeletePoints")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("id_count", len(ids)),
	)

	if err := tn.Validate(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	selector := &qdrant.PointsSelector{
		PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{tenantCondition(tn), hasIDCondition(ids)},
			},
		},
	}

	if _, err := s.backend.Delete(ctx, collection, selector); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting points from %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeletePointsByMetadata removes the caller's points matching the metadata
// constraints. Empty metadata deletes all of the caller's points in the
// collection, never another tenant's.
func (s *Store) DeletePointsByMetadata(ctx context.Context, tn tenant.Info, collection string, metadata map[string]any) error {
	ctx, span := tracer.Start(ctx, "Store.DeletePointsByMetadata")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := tn.Validate(); err != nil {
		return err
	}

	selector := &qdrant.PointsSelector{
		PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
			Filter: BuildFilter(tn, metadata),
		},
	}

	if _, err := s.backend.Delete(ctx, collection, selector); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting points by filter from %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// RetrievePoints fetches points by id within the caller's tenant scope. Ids
// belonging to another tenant are excluded from the result, not errors.
func (s *Store) RetrievePoints(ctx context.Context, tn tenant.Info, collection string, ids []string) ([]Point, error) {
	ctx, span := tracer.Start(ctx, "Store.RetrievePoints")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("id_count", len(ids)),
	)

	if err := tn.Validate(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	records, _, err := s.backend.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{tenantCondition(tn), hasIDCondition(ids)},
		},
		Limit:       qdrant.PtrOf(uint32(len(ids))),
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("retrieving points from %s: %w", collection, err)
	}

	points := make([]Point, len(records))
	for i, record := range records {
		points[i] = pointFromRetrieved(record)
	}

	span.SetAttributes(attribute.Int("points_found", len(points)))
	span.SetStatus(codes.Ok, "success")
	return points, nil
}

// UpdateMetadata shallow-merges patch into each point's metadata (patch keys
// win), re-asserts the tenant term, and re-upserts in place by the same ids.
func (s *Store) UpdateMetadata(ctx context.Context, tn tenant.Info, collection string, points []Point, patch map[string]any) ([]Point, error) {
	ctx, span := tracer.Start(ctx, "Store.UpdateMetadata")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("point_count", len(points)),
	)

	if err := tn.Validate(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}

	updated := make([]Point, len(points))
	structs := make([]*qdrant.PointStruct, len(points))
	for i, point := range points {
		merged := make(map[string]any, len(point.Metadata)+len(patch))
		for k, v := range point.Metadata {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}

		point.Metadata = merged
		point.TenantID = tn.ID
		updated[i] = point
		structs[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(point.ID),
			Vectors: qdrant.NewVectors(point.Vector...),
			Payload: buildPayload(point.Content, merged, tn.ID),
		}
	}

	if _, err := s.backend.Upsert(ctx, collection, structs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("updating metadata in %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return updated, nil
}

// Count returns the number of points the tenant owns in the collection.
func (s *Store) Count(ctx context.Context, tn tenant.Info, collection string) (uint64, error) {
	ctx, span := tracer.Start(ctx, "Store.Count")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := tn.Validate(); err != nil {
		return 0, err
	}

	count, err := s.backend.Count(ctx, collection, BuildFilter(tn, nil))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("counting points in %s: %w", collection, err)
	}

	span.SetAttributes(attribute.Int64("count", int64(count)))
	span.SetStatus(codes.Ok, "success")
	return count, nil
}

// DestroyTenantPoints removes every point the tenant owns in the collection.
// The collection itself is never deleted; it is shared by other tenants.
func (s *Store) DestroyTenantPoints(ctx context.Context, tn tenant.Info, collection string) error {
	ctx, span := tracer.Start(ctx, "Store.DestroyTenantPoints")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := tn.Validate(); err != nil {
		return err
	}

	selector := &qdrant.PointsSelector{
		PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
			Filter: BuildFilter(tn, nil),
		},
	}

	if _, err := s.backend.Delete(ctx, collection, selector); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("destroying tenant points in %s: %w", collection, err)
	}

	s.logger.Warn(ctx, "destroyed all tenant points", zap.String("collection", collection))
	span.SetStatus(codes.Ok, "success")
	return nil
}
