// Package metrics exposes the prometheus counters and histograms the spec
// treats as an external collaborator (observability is explicitly out of
// scope for the core), wired here only as the thin ambient layer around it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	KVOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storegate_kv_operations_total",
		Help: "Count of KV engine operations by type and outcome.",
	}, []string{"operation", "outcome"})

	ObjectUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storegate_object_uploads_total",
		Help: "Count of object uploads by outcome.",
	}, []string{"outcome"})

	ChunkWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storegate_chunk_writes_total",
		Help: "Count of shared chunk writes, split by whether the chunk was already present.",
	}, []string{"deduped"})

	WatchDispatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storegate_watch_dispatch_queue_depth",
		Help: "Depth of the fan-out's raw notification queue awaiting a worker.",
	})

	WatchSubscribersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storegate_watch_subscribers_dropped_total",
		Help: "Count of subscribers disconnected for a full event queue.",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storegate_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status_class"})
)
