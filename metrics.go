package persist

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "persist_snapshot_records_total",
		Help: "Records written by the snapshotter, by kind",
	}, []string{"kind"})

	snapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "persist_snapshot_duration_seconds",
		Help:    "Duration of snapshot passes",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	reconcileEntitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "persist_reconcile_entities_total",
		Help: "Entities handled by the reconciler, by outcome",
	}, []string{"outcome"})

	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "persist_reconcile_duration_seconds",
		Help:    "Duration of reconciliation runs",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	openSpacesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "persist_open_spaces",
		Help: "Sub-spaces currently opening or open across all sessions",
	})

	openTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persist_open_timeouts_total",
		Help: "Waits for a space to open that gave up",
	})

	blobBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "persist_blob_bytes",
		Help:    "Size of save blobs read and written",
		Buckets: prometheus.ExponentialBuckets(256, 4, 10),
	}, []string{"op"})

	malformedSectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persist_blob_malformed_sections_total",
		Help: "Space sections dropped while decoding save blobs",
	})
)

func observeSnapshot(r SnapshotReport, took time.Duration) {
	snapshotRecordsTotal.WithLabelValues("live").Add(float64(r.Live - r.New))
	snapshotRecordsTotal.WithLabelValues("new").Add(float64(r.New))
	snapshotRecordsTotal.WithLabelValues("removed").Add(float64(r.Removed))
	snapshotDuration.Observe(took.Seconds())
}

func observeReconcile(r ReconcileReport, took time.Duration) {
	reconcileEntitiesTotal.WithLabelValues("restored").Add(float64(r.Restored))
	reconcileEntitiesTotal.WithLabelValues("rematched").Add(float64(r.Rematched))
	reconcileEntitiesTotal.WithLabelValues("spawned").Add(float64(r.Spawned))
	reconcileEntitiesTotal.WithLabelValues("destroyed").Add(float64(r.Destroyed))
	reconcileEntitiesTotal.WithLabelValues("unresolved").Add(float64(r.Unresolved))
	reconcileEntitiesTotal.WithLabelValues("missing").Add(float64(r.Missing))
	reconcileDuration.Observe(took.Seconds())
}
