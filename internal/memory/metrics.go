package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PointsUpsertedTotal counts points accepted by the backend, single and
	// batch writes alike.
	PointsUpsertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memoryd",
		Subsystem: "memory",
		Name:      "points_upserted_total",
		Help:      "Total number of points upserted, by collection.",
	}, []string{"collection"})

	// WriteRejectionsTotal counts writes the backend acknowledged without
	// applying. These surface as soft failures, not errors.
	WriteRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memoryd",
		Subsystem: "memory",
		Name:      "write_rejections_total",
		Help:      "Total number of writes acknowledged but not applied, by collection.",
	}, []string{"collection"})

	// RecallsTotal counts similarity searches.
	RecallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memoryd",
		Subsystem: "memory",
		Name:      "recalls_total",
		Help:      "Total number of similarity searches, by collection.",
	}, []string{"collection"})

	// ScanPagesTotal counts cursor pages fetched by bulk scans.
	ScanPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memoryd",
		Subsystem: "memory",
		Name:      "scan_pages_total",
		Help:      "Total number of scroll pages fetched by bulk scans, by collection.",
	}, []string{"collection"})

	// MigrationsTotal counts collection creations and embedder-drift
	// migrations by outcome.
	MigrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memoryd",
		Subsystem: "memory",
		Name:      "migrations_total",
		Help:      "Total number of collection create/migrate operations, by result.",
	}, []string{"result"})
)
