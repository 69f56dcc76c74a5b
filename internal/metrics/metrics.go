// Package metrics is the small instrumentation surface the discovery engine
// reports through. Backends (Datadog, or Nop) implement Backend; callers
// never depend on a concrete backend.
package metrics

import (
	"sync"
	"time"
)

// Labels are low-cardinality key/value pairs attached to a sample.
type Labels map[string]string

// Backend receives counters and histogram observations.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Metric names emitted by the engine.
const (
	DiscoverTotal    = "schemaprobe_discover_total"
	DiscoverDuration = "schemaprobe_discover_duration_seconds"
	ImportRows       = "schemaprobe_import_rows_total"
	ImportBatches    = "schemaprobe_import_batches_total"
	UploadBytes      = "schemaprobe_upload_bytes"
)

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}

// OrNop returns b, or Nop when b is nil.
func OrNop(b Backend) Backend {
	if b == nil {
		return Nop{}
	}
	return b
}

// ObserveSince records the seconds elapsed since start.
func ObserveSince(b Backend, name string, start time.Time, labels Labels) {
	OrNop(b).ObserveHistogram(name, time.Since(start).Seconds(), labels)
}

// Recorder is an in-memory Backend. It backs tests and the CLI's
// end-of-run summary.
type Recorder struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		counters: make(map[string]float64),
		samples:  make(map[string][]float64),
	}
}

func (r *Recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
}

func (r *Recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[name] = append(r.samples[name], value)
}

// Counter returns the running total for name.
func (r *Recorder) Counter(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// Samples returns a copy of the observations for name.
func (r *Recorder) Samples(name string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.samples[name]...)
}
