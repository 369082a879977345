// Package metrics defines observability hooks for the generation cycle.
package metrics

import "time"

// Recorder defines observability hooks for cycle and page metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	IncCacheResult(hit bool)
	ObserveStructureDuration(d time.Duration, success bool)
	ObservePageDuration(d time.Duration, success bool)
	IncPageResult(result string) // result: success|failed|skipped
	SetPagesInFlight(n int)
	IncCycleOutcome(outcome string) // outcome: ready|error
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncCacheResult(bool)                         {}
func (NoopRecorder) ObserveStructureDuration(time.Duration, bool) {}
func (NoopRecorder) ObservePageDuration(time.Duration, bool)      {}
func (NoopRecorder) IncPageResult(string)                        {}
func (NoopRecorder) SetPagesInFlight(int)                        {}
func (NoopRecorder) IncCycleOutcome(string)                      {}
