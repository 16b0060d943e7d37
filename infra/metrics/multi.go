package metrics

import coremetrics "github.com/loadshift/loadshift/core/metrics"

// MultiSink fans scheduling events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordEvaluation forwards the event to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordEvaluation(ev coremetrics.EvaluationEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordEvaluation(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun forwards run events.
func (m *MultiSink) RecordRun(ev coremetrics.RunEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordRun(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordFetch forwards fetch events to sinks that support them.
func (m *MultiSink) RecordFetch(ev coremetrics.FetchEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.FetchRecorder); ok {
			if err := rec.RecordFetch(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
