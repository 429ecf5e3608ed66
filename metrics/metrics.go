// Package metrics records payment counters and latencies.
package metrics

import "time"

// Recorder is implemented by every metrics backend. Labels understood by the
// Prometheus backend are "asset" and "outcome"; others are ignored.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// NoopRecorder drops everything. It is the default when no backend is set.
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
