package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stream outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeTruncated = "truncated"
	OutcomeFailed    = "failed"
)

// Metrics holds Prometheus counters and gauges for the delivery server.
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	streamsTotal       *prometheus.CounterVec
	bytesStreamedTotal prometheus.Counter
	rejectionsTotal    *prometheus.CounterVec
	rangeResponses     *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	cacheEvictions     *prometheus.CounterVec
	activeStreams      prometheus.Gauge
	cacheEntries       *prometheus.GaugeVec
}

// New creates and registers Prometheus metrics for the delivery server.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audio_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audio_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	streamsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_streams_total",
		Help: "Finished audio streams by outcome",
	}, []string{"outcome"})
	bytesStreamedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audio_streamed_bytes_total",
		Help: "Total number of audio bytes written to clients",
	})
	rejectionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_admission_rejections_total",
		Help: "Streams rejected by the concurrency limiter, by scope",
	}, []string{"scope"})
	rangeResponses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_range_responses_total",
		Help: "Stream responses by status code (200, 206, 304, 416)",
	}, []string{"status"})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_cache_lookups_total",
		Help: "Cache lookups by cache and result",
	}, []string{"cache", "result"})
	cacheEvictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_cache_evictions_total",
		Help: "Cache entries removed by cache and reason (capacity, expired)",
	}, []string{"cache", "reason"})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audio_active_streams",
		Help: "Number of streams currently holding a limiter slot",
	})
	cacheEntries := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audio_cache_entries",
		Help: "Current number of entries per cache",
	}, []string{"cache"})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		streamsTotal,
		bytesStreamedTotal,
		rejectionsTotal,
		rangeResponses,
		cacheLookups,
		cacheEvictions,
		activeStreams,
		cacheEntries,
	)

	return &Metrics{
		registry:           registry,
		requestsTotal:      requestsTotal,
		errorsTotal:        errorsTotal,
		streamsTotal:       streamsTotal,
		bytesStreamedTotal: bytesStreamedTotal,
		rejectionsTotal:    rejectionsTotal,
		rangeResponses:     rangeResponses,
		cacheLookups:       cacheLookups,
		cacheEvictions:     cacheEvictions,
		activeStreams:      activeStreams,
		cacheEntries:       cacheEntries,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// ObserveStream records a finished stream and the bytes it wrote.
func (m *Metrics) ObserveStream(outcome string, written int64) {
	if m == nil {
		return
	}
	m.streamsTotal.WithLabelValues(outcome).Inc()
	if written > 0 {
		m.bytesStreamedTotal.Add(float64(written))
	}
}

// IncAdmissionRejected counts a limiter rejection; scope is "global" or "user".
func (m *Metrics) IncAdmissionRejected(scope string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(scope).Inc()
}

// IncResponseStatus counts a stream response by status code.
func (m *Metrics) IncResponseStatus(status int) {
	if m == nil {
		return
	}
	m.rangeResponses.WithLabelValues(strconv.Itoa(status)).Inc()
}

// IncCacheLookup records a hit or miss for the named cache.
func (m *Metrics) IncCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// AddCacheEvictions adds n evicted entries for the named cache and reason.
func (m *Metrics) AddCacheEvictions(cache, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheEvictions.WithLabelValues(cache, reason).Add(float64(n))
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	if m == nil {
		return
	}
	m.activeStreams.Set(float64(n))
}

// SetCacheEntries sets the entry gauge for the named cache.
func (m *Metrics) SetCacheEntries(cache string, n int) {
	if m == nil {
		return
	}
	m.cacheEntries.WithLabelValues(cache).Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active streams).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
