package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the profile fetcher.
type Metrics struct {
	Registry             *prometheus.Registry
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      prometheus.Histogram
	ProfilesFetchedTotal prometheus.Counter
	ErrorsTotal          *prometheus.CounterVec
}

// NewMetrics constructs the fetcher metrics and registers them on registry.
// A nil registry gets a dedicated one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "divemeets_fetch_requests_total",
			Help: "Total profile requests issued by the fetcher.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "divemeets_fetch_request_duration_seconds",
			Help:    "Latency of profile requests, including failed ones.",
			Buckets: prometheus.DefBuckets,
		},
	)
	profilesFetched := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "divemeets_profiles_fetched_total",
			Help: "Total number of profile pages fetched successfully.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "divemeets_fetch_errors_total",
			Help: "Total number of fetch failures by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, profilesFetched, errorsTotal)

	return &Metrics{
		Registry:             registry,
		RequestsTotal:        requests,
		RequestDuration:      requestDuration,
		ProfilesFetchedTotal: profilesFetched,
		ErrorsTotal:          errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records a request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncProfiles increments the fetched profiles counter.
func (m *Metrics) IncProfiles() {
	if m == nil {
		return
	}
	m.ProfilesFetchedTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
