package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for batch runs.
type Metrics struct {
	ItemsTotal      *prometheus.CounterVec
	DuplicatesTotal prometheus.Counter
	BatchDuration   prometheus.Gauge
}

// NewMetrics registers the batch collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "divemeets_batch_items_total",
				Help: "Identifiers handled by batch runs, by outcome.",
			},
			[]string{"outcome"},
		),
		DuplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "divemeets_batch_duplicates_total",
				Help: "Duplicate identifiers dropped before fetching.",
			},
		),
		BatchDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "divemeets_batch_last_duration_seconds",
				Help: "Wall time of the most recent batch run.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.ItemsTotal, m.DuplicatesTotal, m.BatchDuration)
	}
	return m
}

// IncOutcome counts one handled identifier.
func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(outcome).Inc()
}

// AddDuplicates counts dropped duplicates.
func (m *Metrics) AddDuplicates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DuplicatesTotal.Add(float64(n))
}

// ObserveBatch records the duration of a finished run.
func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.BatchDuration.Set(d.Seconds())
}
