// Package sink forwards named numeric values to a metric backend.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UnitCount is the unit used for all batch counters.
const UnitCount = "Count"

// Metric is one value emitted under a namespace.
type Metric struct {
	Namespace string
	Name      string
	Value     float64
	Unit      string
	Timestamp time.Time
}

// Sink accepts metrics. Implementations must not block for long: emission is a side channel.
type Sink interface {
	Emit(ctx context.Context, metrics ...Metric) error
}

// FromCounts turns named counts into Count metrics, sorted by name.
func FromCounts(namespace string, counts map[string]float64, ts time.Time) []Metric {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Metric, 0, len(names))
	for _, name := range names {
		out = append(out, Metric{
			Namespace: namespace,
			Name:      name,
			Value:     counts[name],
			Unit:      UnitCount,
			Timestamp: ts,
		})
	}
	return out
}

// PrometheusSink exposes the last value of each metric as a gauge.
type PrometheusSink struct {
	Gauge *prometheus.GaugeVec
}

// NewPrometheusSink registers the sink gauge on registry.
func NewPrometheusSink(registry prometheus.Registerer) *PrometheusSink {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skillrating_reported_value",
			Help: "Last value reported for a named batch or staleness metric.",
		},
		[]string{"namespace", "metric", "unit"},
	)
	registry.MustRegister(gauge)
	return &PrometheusSink{Gauge: gauge}
}

func (s *PrometheusSink) Emit(_ context.Context, metrics ...Metric) error {
	for _, m := range metrics {
		s.Gauge.WithLabelValues(m.Namespace, m.Name, m.Unit).Set(m.Value)
	}
	return nil
}

// LogSink writes every metric as a structured log line.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, metrics ...Metric) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, m := range metrics {
		logger.LogAttrs(ctx, slog.LevelInfo, "metric",
			slog.String("namespace", m.Namespace),
			slog.String("name", m.Name),
			slog.Float64("value", m.Value),
			slog.String("unit", m.Unit),
			slog.Time("timestamp", m.Timestamp),
		)
	}
	return nil
}

// Multi fans metrics out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, metrics ...Metric) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, metrics...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
