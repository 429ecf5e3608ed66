package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the splitpay collectors with reg, or with
// the default registerer when reg is nil.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splitpay",
			Name:      "events_total",
			Help:      "splitpay event counters",
		},
		[]string{"type", "asset", "outcome"},
	)

	// finality on Asset Hub takes tens of seconds
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "splitpay",
			Name:      "latency_seconds",
			Help:      "splitpay operation latency",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"operation", "asset", "outcome"},
	)

	for _, c := range []prometheus.Collector{counters, histogram} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &PrometheusRecorder{
		counters:  counters,
		histogram: histogram,
	}, nil
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":    name,
		"asset":   labels["asset"],
		"outcome": labels["outcome"],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation": name,
		"asset":     labels["asset"],
		"outcome":   labels["outcome"],
	}).Observe(d.Seconds())
}
