package memory

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/tenant"
)

// maxRecallLimit caps a single recall to keep one query from exhausting the
// backend. Unbounded reads belong to the scanner.
const maxRecallLimit = 10000

// Quantization search parameters, fixed for a uniform recall/latency
// trade-off: search the quantized vectors, oversample, then rescore the
// candidates against the originals.
const recallOversampling = 2.0

// Recall performs bounded, quantization-aware nearest-neighbor search scoped
// to one tenant.
type Recall struct {
	backend Backend
	logger  *logging.Logger
	scanner *Scanner
}

// NewRecall creates a recall engine. The scanner serves RecallAll.
func NewRecall(backend Backend, scanner *Scanner, logger *logging.Logger) *Recall {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recall{
		backend: backend,
		logger:  logger.Named("recall"),
		scanner: scanner,
	}
}

// Recall returns up to k points nearest to the embedding, ordered by
// non-increasing similarity, constrained to the tenant plus optional
// metadata terms. A non-nil threshold drops lower-scored matches
// server-side. k is required: unbounded reads must use the scanner.
func (r *Recall) Recall(ctx context.Context, tn tenant.Info, collection string, embedding []float32, metadata map[string]any, k uint64, threshold *float32) ([]RankedPoint, error) {
	ctx, span := tracer.Start(ctx, "Recall.Recall")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int64("k", int64(k)),
	)

	if err := tn.Validate(); err != nil {
		return nil, err
	}
	if k == 0 {
		return nil, ErrInvalidLimit
	}
	if k > maxRecallLimit {
		k = maxRecallLimit
	}

	results, err := r.backend.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         BuildFilter(tn, metadata),
		Limit:          qdrant.PtrOf(k),
		ScoreThreshold: threshold,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
		Params: &qdrant.SearchParams{
			Quantization: &qdrant.QuantizationSearchParams{
				Ignore:       qdrant.PtrOf(false),
				Rescore:      qdrant.PtrOf(true),
				Oversampling: qdrant.PtrOf(recallOversampling),
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", collection, err)
	}

	ranked := make([]RankedPoint, len(results))
	for i, result := range results {
		ranked[i] = pointFromScored(result)
	}

	RecallsTotal.WithLabelValues(collection).Inc()
	span.SetAttributes(attribute.Int("results_count", len(ranked)))
	span.SetStatus(codes.Ok, "success")
	return ranked, nil
}

// RecallAll lists every point the tenant owns in the collection. Results
// carry a nil score, distinguishing "listed" from "ranked".
func (r *Recall) RecallAll(ctx context.Context, tn tenant.Info, collection string) ([]RankedPoint, error) {
	ctx, span := tracer.Start(ctx, "Recall.RecallAll")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	points, _, err := r.scanner.GetAllPoints(ctx, tn, collection, nil, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ranked := make([]RankedPoint, len(points))
	for i, point := range points {
		ranked[i] = RankedPoint{Point: point, Score: nil}
	}

	span.SetAttributes(attribute.Int("results_count", len(ranked)))
	span.SetStatus(codes.Ok, "success")
	return ranked, nil
}
