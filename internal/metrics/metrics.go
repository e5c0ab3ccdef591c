package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	eventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockrank_events_processed_total",
			Help: "Total number of domain events folded into the entity store",
		},
		[]string{"event_type"},
	)

	eventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockrank_events_skipped_total",
			Help: "Total number of logs skipped without materialized effect",
		},
		[]string{"reason"},
	)

	handlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blockrank_handler_duration_seconds",
			Help:    "Duration of event handler execution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	LastIndexedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockrank_last_indexed_block",
			Help: "The last block number successfully indexed",
		},
	)

	WatchedSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockrank_watched_sources",
			Help: "Number of dynamically registered per-block event sources",
		},
	)

	snapshotsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blockrank_ranking_snapshots_written_total",
			Help: "Total number of ranking snapshot upserts",
		},
	)

	// Query API metrics
	apiRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockrank_api_requests_total",
			Help: "Total number of API requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	apiRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blockrank_api_rate_limited_total",
			Help: "Total number of API requests rejected with 429",
		},
	)

	// RPC metrics
	rpcRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockrank_rpc_retries_total",
			Help: "Total number of RPC call retries",
		},
		[]string{"operation"},
	)

	dbErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockrank_db_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"entity", "operation"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockrank_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockrank_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "blockrank_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func EventProcessedInc(eventType string) {
	eventsProcessed.WithLabelValues(eventType).Inc()
}

func EventSkippedInc(reason string) {
	eventsSkipped.WithLabelValues(reason).Inc()
}

func HandlerDurationLog(eventType string, duration time.Duration) {
	handlerDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func LastIndexedBlockSet(blockNum uint64) {
	LastIndexedBlock.Set(float64(blockNum))
}

func WatchedSourcesSet(count int) {
	WatchedSources.Set(float64(count))
}

func SnapshotWrittenInc() {
	snapshotsWritten.Inc()
}

func APIRequestInc(endpoint string, status int) {
	apiRequests.WithLabelValues(endpoint, statusClass(status)).Inc()
}

func APIRateLimitedInc() {
	apiRateLimited.Inc()
}

func RPCRetryInc(operation string) {
	rpcRetries.WithLabelValues(operation).Inc()
}

func DBErrorInc(entity, operation string) {
	dbErrors.WithLabelValues(entity, operation).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status == 429:
		return "429"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
