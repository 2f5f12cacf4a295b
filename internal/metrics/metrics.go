// Package metrics provides Prometheus metrics collection for the asset server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetd_requests_total",
			Help: "Total number of requests by route and status",
		},
		[]string{"route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetd_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)

	ResponseBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetd_response_bytes_total",
			Help: "Total number of body bytes written by route",
		},
		[]string{"route"},
	)

	// Resolver metrics
	ResolveErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetd_resolve_errors_total",
			Help: "Total number of failed asset resolutions by reason",
		},
		[]string{"reason"},
	)

	AssetOpenDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetd_asset_open_duration_seconds",
			Help:    "Time to open an asset in its source, excluding any wait for a read slot",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"source"},
	)

	ReadSlotWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assetd_read_slot_wait_seconds",
			Help:    "Time spent waiting for a read slot when max_concurrent_reads is set",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	// Cache metrics
	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assetd_cache_hits_total",
			Help: "Total number of in-memory cache hits",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assetd_cache_misses_total",
			Help: "Total number of in-memory cache misses",
		},
	)

	CacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "assetd_cache_size_bytes",
			Help: "Total size of cached assets in bytes",
		},
	)

	CachedAssets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "assetd_cached_assets",
			Help: "Number of assets held in the in-memory cache",
		},
	)

	// Active requests
	ActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "assetd_active_requests",
			Help: "Number of currently active requests",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ResponseBytes,
		ResolveErrors,
		AssetOpenDuration,
		ReadSlotWait,
		CacheHits,
		CacheMisses,
		CacheSize,
		CachedAssets,
		ActiveRequests,
	)
}

// Handler returns an HTTP handler for the Prometheus /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest tracks request metrics with timing.
// route should be a low-cardinality route pattern, never the raw path.
func RecordRequest(route string, status int, bytes int64, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	RequestsTotal.WithLabelValues(route, statusStr).Inc()
	RequestDuration.WithLabelValues(route, statusStr).Observe(duration.Seconds())
	if bytes > 0 {
		ResponseBytes.WithLabelValues(route).Add(float64(bytes))
	}
}

// RecordResolveError increments the resolve error counter.
// reason: not_found, traversal, canceled, error
func RecordResolveError(reason string) {
	ResolveErrors.WithLabelValues(reason).Inc()
}

// RecordAssetOpen tracks how long opening an asset took.
func RecordAssetOpen(source string, duration time.Duration) {
	AssetOpenDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordReadSlotWait tracks how long an open waited for a read slot.
func RecordReadSlotWait(duration time.Duration) {
	ReadSlotWait.Observe(duration.Seconds())
}

// RecordCacheHit increments cache hit counter.
func RecordCacheHit() {
	CacheHits.Inc()
}

// RecordCacheMiss increments cache miss counter.
func RecordCacheMiss() {
	CacheMisses.Inc()
}

// UpdateCacheStats updates cache size and entry count gauges.
func UpdateCacheStats(sizeBytes int64, entries int) {
	CacheSize.Set(float64(sizeBytes))
	CachedAssets.Set(float64(entries))
}

// IncrementActiveRequests increments the active request counter.
func IncrementActiveRequests() {
	ActiveRequests.Inc()
}

// DecrementActiveRequests decrements the active request counter.
func DecrementActiveRequests() {
	ActiveRequests.Dec()
}
