// Package metrics 定義服務的 Prometheus 指標
//
// 所有指標以 promauto 註冊到預設 registry，由 /metrics 端點輸出。
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 計數快取
	CounterCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engagement_cache_hits_total",
			Help: "Total number of counter reads served from the cache",
		},
	)

	CounterCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engagement_cache_misses_total",
			Help: "Total number of counter reads that fell through to the durable store",
		},
	)

	CounterStoreFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_read_fallbacks_total",
			Help: "Total number of reads answered with zero counters because a dependency failed",
		},
		[]string{"reason"}, // "cache", "store", "breaker_open"
	)

	CounterIncrements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_increments_total",
			Help: "Total number of counter increments by field and result",
		},
		[]string{"field", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engagement_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// 同步
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_sync_runs_total",
			Help: "Total number of sync passes by result",
		},
		[]string{"result"},
	)

	SyncEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_sync_entries_total",
			Help: "Total number of cache entries processed by the sync worker",
		},
		[]string{"outcome"}, // "synced", "skipped", "failed"
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engagement_sync_duration_seconds",
			Help:    "Duration of a full sync pass in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engagement_sync_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last sync pass without scan errors",
		},
	)

	// Feed
	FeedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_feed_requests_total",
			Help: "Total number of feed requests by tab and result",
		},
		[]string{"tab", "result"},
	)

	FeedDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engagement_feed_duration_seconds",
			Help:    "Duration of feed assembly in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tab"},
	)

	HotCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engagement_hot_candidates",
			Help:    "Number of candidates scored per hot feed request",
			Buckets: []float64{10, 50, 100, 500, 1000, 2500, 5000},
		},
	)

	MembershipFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_membership_lookup_failures_total",
			Help: "Total number of membership lookups that failed and defaulted to false",
		},
		[]string{"kind"}, // "like", "collect"
	)

	// 事件
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_events_consumed_total",
			Help: "Total number of NATS events consumed by subject and result",
		},
		[]string{"subject", "result"},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engagement_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordIncrement 記錄一次計數遞增
func RecordIncrement(field string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CounterIncrements.WithLabelValues(field, result).Inc()
}

// RecordSyncRun 記錄一次同步
func RecordSyncRun(duration time.Duration, synced, skipped, failed int, err error) {
	SyncDuration.Observe(duration.Seconds())
	SyncEntries.WithLabelValues("synced").Add(float64(synced))
	SyncEntries.WithLabelValues("skipped").Add(float64(skipped))
	SyncEntries.WithLabelValues("failed").Add(float64(failed))

	if err != nil {
		SyncRuns.WithLabelValues("error").Inc()
		return
	}
	if failed > 0 {
		SyncRuns.WithLabelValues("partial").Inc()
	} else {
		SyncRuns.WithLabelValues("success").Inc()
	}
	SyncLastSuccess.Set(float64(time.Now().Unix()))
}

// RecordFeed 記錄一次 feed 請求
func RecordFeed(tab string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	FeedRequests.WithLabelValues(tab, result).Inc()
	FeedDuration.WithLabelValues(tab).Observe(duration.Seconds())
}

// RecordEvent 記錄一則事件處理結果
func RecordEvent(subject string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsConsumed.WithLabelValues(subject, result).Inc()
}

// RecordHTTPRequest 記錄 HTTP 請求
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
