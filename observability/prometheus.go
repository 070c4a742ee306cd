package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DurationKey is the Data key whose value PrometheusObserver records as the
// event duration, in milliseconds.
const DurationKey = "duration_ms"

// PrometheusObserver counts events by type and records event durations.
type PrometheusObserver struct {
	events    *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheusObserver registers its collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusObserver{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "optenv_events_total",
			Help: "Total observability events by type",
		}, []string{"type"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optenv_event_duration_seconds",
			Help:    "Duration of timed events in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
		}, []string{"type"}),
	}
}

func (o *PrometheusObserver) OnEvent(ctx context.Context, event Event) {
	o.events.WithLabelValues(string(event.Type)).Inc()

	if ms, ok := milliseconds(event.Data[DurationKey]); ok {
		o.durations.WithLabelValues(string(event.Type)).Observe(ms / 1000)
	}
}

func milliseconds(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
