// Package metrics defines the sink interface and event structs for
// scheduling telemetry. Sinks like PromSink and InfluxSink in infra/metrics
// record evaluations, upstream fetches, and task runs, and can be combined
// with NewMultiSink.
package metrics

import "time"

// FetchEvent describes one upstream forecast fetch, successful or not.
type FetchEvent struct {
	Source   string
	Attempts int
	Success  bool
	Duration time.Duration
	Time     time.Time
}

// EvaluationEvent describes one scheduling cycle: the slot chosen so far and
// the worst intensity seen across the scanned window.
type EvaluationEvent struct {
	Source           string
	SlotTime         time.Time
	SlotIntensity    int
	WorstIntensity   int
	PointsConsidered int
	RunNow           bool
	Time             time.Time
}

// RunEvent describes a completed task execution.
type RunEvent struct {
	Command         string
	ActualIntensity int
	WorstIntensity  int
	SavingPercent   int
	RunDuration     time.Duration
	Time            time.Time
}

// Sink records scheduling events. Implementations must be safe for use from
// a single scheduler goroutine; they are not required to be concurrency-safe.
type Sink interface {
	RecordEvaluation(EvaluationEvent) error
	RecordRun(RunEvent) error
}

// FetchRecorder is implemented by sinks that also record fetch events.
type FetchRecorder interface {
	RecordFetch(FetchEvent) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordEvaluation(EvaluationEvent) error { return nil }
func (NopSink) RecordRun(RunEvent) error               { return nil }
func (NopSink) RecordFetch(FetchEvent) error           { return nil }
