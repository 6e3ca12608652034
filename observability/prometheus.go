package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DurationBuckets spans interactive snippets through long-running scripts.
var DurationBuckets = []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30, 120, 600}

// PrometheusObserver turns events into metrics. Every event increments
// pyide_events_total; events carrying a "duration" of type time.Duration also
// feed pyide_event_duration_seconds.
type PrometheusObserver struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusObserver registers its collectors with reg. A nil reg uses the
// default registerer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pyide_events_total",
				Help: "Observability events by type and severity",
			},
			[]string{"type", "level"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pyide_event_duration_seconds",
				Help:    "Duration attached to completion events",
				Buckets: DurationBuckets,
			},
			[]string{"type"},
		),
	}

	for _, c := range []prometheus.Collector{o.events, o.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusObserver) OnEvent(_ context.Context, event Event) {
	o.events.WithLabelValues(string(event.Type), event.Level.String()).Inc()
	if d, ok := event.Data["duration"].(time.Duration); ok {
		o.duration.WithLabelValues(string(event.Type)).Observe(d.Seconds())
	}
}
