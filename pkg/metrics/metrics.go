package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommitsTotal counts committed write transactions.
	CommitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livedb_store_commits_total",
			Help: "Total number of committed write transactions",
		},
	)
	// CommittedVersion is the latest committed store version.
	CommittedVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livedb_store_committed_version",
			Help: "Latest committed store version",
		},
	)
	// PinnedSnapshots is the number of snapshot references currently held.
	PinnedSnapshots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livedb_store_pinned_snapshots",
			Help: "Number of live snapshot references",
		},
	)
	// VersionsPruned counts record versions removed by garbage collection.
	VersionsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livedb_store_versions_pruned_total",
			Help: "Total number of record versions removed by garbage collection",
		},
	)
	// QueryEvaluations counts predicate evaluations by outcome and whether an index was used.
	QueryEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livedb_query_evaluations_total",
			Help: "Total number of predicate evaluations",
		},
		[]string{"table", "indexed", "status"},
	)
	// QueryDuration is the latency of predicate evaluations.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livedb_query_duration_seconds",
			Help:    "Predicate evaluation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)
	// AggregationsTotal counts aggregate computations by operation and status.
	AggregationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livedb_aggregations_total",
			Help: "Total number of aggregate computations",
		},
		[]string{"op", "status"},
	)
	// NotificationsTotal counts change notifications delivered to live collections.
	NotificationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livedb_notifications_total",
			Help: "Total number of change notifications delivered",
		},
	)
	// PendingTasks is the number of scheduler tasks waiting for a tick.
	PendingTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livedb_scheduler_pending_tasks",
			Help: "Number of scheduler tasks waiting for the next tick",
		},
	)
)

// Status returns the label value for an operation result.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
