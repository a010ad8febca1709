package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woolet_investing_http_requests_total",
			Help: "The total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "woolet_investing_http_request_duration_seconds",
			Help:    "The HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "woolet_investing_cache_hits_total",
			Help: "The total number of cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "woolet_investing_cache_misses_total",
			Help: "The total number of cache misses",
		},
	)

	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "woolet_investing_cache_evictions_total",
			Help: "The total number of cache entries evicted under LRU pressure",
		},
	)

	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "woolet_investing_cache_size",
			Help: "The current number of tracked cache entries",
		},
	)

	BackgroundRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woolet_investing_cache_background_refresh_total",
			Help: "The total number of stale-while-revalidate refreshes",
		},
		[]string{"status"},
	)

	// Market data provider metrics
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woolet_investing_provider_requests_total",
			Help: "The total number of market data provider requests",
		},
		[]string{"endpoint", "status_code"},
	)

	ProviderRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "woolet_investing_provider_request_duration_seconds",
			Help:    "The market data provider request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woolet_investing_provider_errors_total",
			Help: "The total number of market data provider errors",
		},
		[]string{"error_type"},
	)

	ProviderThrottleWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "woolet_investing_provider_throttle_wait_seconds",
			Help:    "Time spent waiting on the provider rate gate",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 7.5, 10, 15, 30, 60},
		},
	)

	// Refresh job metrics
	RefreshJobTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woolet_investing_refresh_job_total",
			Help: "The total number of scheduled refresh runs per symbol",
		},
		[]string{"status"},
	)

	// Service info
	ServiceInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "woolet_investing_service_info",
			Help: "Information about the investing service",
		},
		[]string{"version", "cache_backend"},
	)
)

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordCacheEvictions records entries removed under LRU pressure
func RecordCacheEvictions(count int) {
	CacheEvictionsTotal.Add(float64(count))
}

// RecordBackgroundRefresh records a stale-while-revalidate refresh outcome
func RecordBackgroundRefresh(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	BackgroundRefreshTotal.WithLabelValues(status).Inc()
}

// RecordProviderRequest records a market data provider request
func RecordProviderRequest(endpoint string, statusCode int, duration time.Duration) {
	ProviderRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	ProviderRequestDuration.Observe(duration.Seconds())
}

// RecordProviderError records a market data provider error
func RecordProviderError(errorType string) {
	ProviderErrors.WithLabelValues(errorType).Inc()
}

// RecordThrottleWait records time spent queued behind the rate gate
func RecordThrottleWait(d time.Duration) {
	ProviderThrottleWait.Observe(d.Seconds())
}

// RecordRefreshJob records a scheduled refresh outcome for one symbol
func RecordRefreshJob(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	RefreshJobTotal.WithLabelValues(status).Inc()
}

// SetServiceInfo sets service information
func SetServiceInfo(version, cacheBackend string) {
	ServiceInfo.WithLabelValues(version, cacheBackend).Set(1)
}
