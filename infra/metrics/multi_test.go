package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/loadshift/loadshift/core/metrics"
)

type recordingSink struct {
	evals, runs, fetches int
}

func (r *recordingSink) RecordEvaluation(coremetrics.EvaluationEvent) error {
	r.evals++
	return nil
}
func (r *recordingSink) RecordRun(coremetrics.RunEvent) error { r.runs++; return nil }
func (r *recordingSink) RecordFetch(coremetrics.FetchEvent) error {
	r.fetches++
	return nil
}

type evalOnlySink struct{ evals int }

func (e *evalOnlySink) RecordEvaluation(coremetrics.EvaluationEvent) error {
	e.evals++
	return nil
}
func (e *evalOnlySink) RecordRun(coremetrics.RunEvent) error { return nil }

func TestMultiSinkFanout(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := NewMultiSink(a, b)

	require.NoError(t, m.RecordEvaluation(coremetrics.EvaluationEvent{}))
	require.NoError(t, m.RecordRun(coremetrics.RunEvent{}))
	require.NoError(t, m.RecordFetch(coremetrics.FetchEvent{}))

	for _, s := range []*recordingSink{a, b} {
		assert.Equal(t, 1, s.evals)
		assert.Equal(t, 1, s.runs)
		assert.Equal(t, 1, s.fetches)
	}
}

func TestMultiSinkSkipsUnsupportedFetch(t *testing.T) {
	a := &evalOnlySink{}
	b := &recordingSink{}
	m := NewMultiSink(a, b)

	require.NoError(t, m.RecordFetch(coremetrics.FetchEvent{}))
	assert.Equal(t, 1, b.fetches)
	assert.Equal(t, 0, a.evals)
}
