package reasoning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// changesEnqueued counts forest changes by kind.
	changesEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semreason_forest_changes_total",
		Help: "Forest change records enqueued by kind",
	}, []string{"kind"})

	// queueDepth tracks pending change records.
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "semreason_change_queue_depth",
		Help: "Change records waiting for the background worker",
	})

	// partitions tracks the number of forest partitions.
	partitions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "semreason_forest_partitions",
		Help: "Forest partitions in the current index",
	})

	// batchesProcessed counts worker batches by outcome.
	batchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semreason_worker_batches_total",
		Help: "Worker batches by outcome",
	}, []string{"result"})

	// changesDrained counts change records taken off the queue by the
	// store they are looked up in first.
	changesDrained = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semreason_worker_changes_drained_total",
		Help: "Change records drained by the worker",
	}, []string{"class"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "semreason_worker_batch_duration_seconds",
		Help:    "Worker batch duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
	})

	// recomputations counts derived graph recomputations by trigger and result.
	recomputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semreason_inferred_recomputations_total",
		Help: "Derived metadata recomputations by trigger and result",
	}, []string{"trigger", "result"})

	// retries counts retry obligations by outcome.
	retries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semreason_retries_total",
		Help: "Deferred recompute obligations by outcome",
	}, []string{"outcome"})
)
