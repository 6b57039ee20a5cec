package memory

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/tenant"
)

// scanPageSize is the page size the unbounded scan drives internally.
const scanPageSize = 10000

// scanPagesPerSecond paces unbounded scans so a full-collection read cannot
// saturate the backend.
const scanPagesPerSecond = 10

// Cursor is the opaque pagination token returned by bounded scans. Pass it
// back to resume; nil means start from the beginning (as input) or end of
// results (as output).
type Cursor = *qdrant.PointId

// Scanner performs cursor-paginated bulk reads, always tenant-scoped.
type Scanner struct {
	backend Backend
	logger  *logging.Logger
	limiter *rate.Limiter
}

// NewScanner creates a bulk scanner.
func NewScanner(backend Backend, logger *logging.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{
		backend: backend,
		logger:  logger.Named("scanner"),
		limiter: rate.NewLimiter(rate.Limit(scanPagesPerSecond), 1),
	}
}

// GetAllPoints reads the tenant's points in a collection.
//
// Bounded form (limit non-nil): one cursor page starting at offset (nil =
// beginning); the returned cursor is nil at end of results.
//
// Unbounded form (limit nil): drives pages of scanPageSize internally,
// pacing between pages and honoring context cancellation between (not
// within) pages; returns the full accumulation with a nil cursor.
func (s *Scanner) GetAllPoints(ctx context.Context, tn tenant.Info, collection string, limit *uint32, offset Cursor, metadata map[string]any) ([]Point, Cursor, error) {
	ctx, span := tracer.Start(ctx, "Scanner.GetAllPoints")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := tn.Validate(); err != nil {
		return nil, nil, err
	}

	return s.scan(ctx, collection, BuildFilter(tn, metadata), limit, offset, true)
}

// GetAllPointsFromWeb reads the tenant's points whose metadata source starts
// with http. Vectors are omitted to reduce transfer size.
func (s *Scanner) GetAllPointsFromWeb(ctx context.Context, tn tenant.Info, collection string, limit *uint32, offset Cursor) ([]Point, Cursor, error) {
	ctx, span := tracer.Start(ctx, "Scanner.GetAllPointsFromWeb")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := tn.Validate(); err != nil {
		return nil, nil, err
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			tenantCondition(tn),
			textCondition(payloadMetadataKey+".source", "http"),
		},
	}
	return s.scan(ctx, collection, filter, limit, offset, false)
}

// GetAllPointsFromFiles reads the tenant's points whose metadata source does
// NOT start with http, i.e. ingested documents rather than web pages.
// Vectors are omitted to reduce transfer size.
func (s *Scanner) GetAllPointsFromFiles(ctx context.Context, tn tenant.Info, collection string, limit *uint32, offset Cursor) ([]Point, Cursor, error) {
	ctx, span := tracer.Start(ctx, "Scanner.GetAllPointsFromFiles")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := tn.Validate(); err != nil {
		return nil, nil, err
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{tenantCondition(tn)},
		MustNot: []*qdrant.Condition{
			textCondition(payloadMetadataKey+".source", "http"),
		},
	}
	return s.scan(ctx, collection, filter, limit, offset, false)
}

func (s *Scanner) scan(ctx context.Context, collection string, filter *qdrant.Filter, limit *uint32, offset Cursor, withVectors bool) ([]Point, Cursor, error) {
	if limit != nil {
		return s.scanPage(ctx, collection, filter, *limit, offset, withVectors)
	}

	// Unbounded: accumulate page by page until the cursor runs out.
	var points []Point
	for {
		batch, next, err := s.scanPage(ctx, collection, filter, scanPageSize, offset, withVectors)
		if err != nil {
			return nil, nil, err
		}
		points = append(points, batch...)

		if next == nil {
			return points, nil, nil
		}
		offset = next

		// Pacing doubles as the cancellation point between pages.
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("scan of %s canceled: %w", collection, err)
		}
	}
}

func (s *Scanner) scanPage(ctx context.Context, collection string, filter *qdrant.Filter, limit uint32, offset Cursor, withVectors bool) ([]Point, Cursor, error) {
	records, next, err := s.backend.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(limit),
		Offset:         offset,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(withVectors),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scrolling %s: %w", collection, err)
	}

	ScanPagesTotal.WithLabelValues(collection).Inc()

	points := make([]Point, len(records))
	for i, record := range records {
		points[i] = pointFromRetrieved(record)
	}
	return points, next, nil
}
