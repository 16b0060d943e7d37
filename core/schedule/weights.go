// Package schedule implements the scheduling engine: decomposing a forecast
// window into candidate slots, duration-weighting slots when a task spans a
// half-hour boundary, selecting the execution slot, and driving the
// evaluate/wait/run cycle.
package schedule

import (
	"gonum.org/v1/gonum/floats"

	"github.com/loadshift/loadshift/core/forecast"
)

// SpansBoundary reports whether a task of the given duration and start
// offset (both in minutes) crosses a half-hour boundary and therefore needs
// duration-weighted intensities.
func SpansBoundary(duration, offset int) bool {
	return duration+offset > 30
}

// TaskWeights builds the per-bucket minute weights for a task. With a start
// offset the first bucket only holds (30 - offset) minutes, full 30-minute
// buckets cover the middle, and the final weight mops up the remainder
// (possibly zero). The weights always sum to duration.
func TaskWeights(duration, offset int) []int {
	residual := duration
	var weights []int
	if offset > 0 {
		leading := 30 - offset
		weights = append(weights, leading)
		residual -= leading
	}
	mid := residual / 30
	for i := 0; i < mid; i++ {
		weights = append(weights, 30)
	}
	residual -= mid * 30
	weights = append(weights, residual)
	return weights
}

// Weight produces a new window whose entry i carries the integer-truncated
// weighted mean of window[i..i+len(weights)) intensities. The result is
// shorter than the input by len(weights)-1: start positions too close to the
// forecast horizon cannot fit the whole task and are dropped rather than
// left behind with stale values. A weight vector longer than the window
// yields nil: no start position fits inside the forecast horizon.
func Weight(window forecast.Window, weights []int) forecast.Window {
	if len(weights) > len(window) {
		return nil
	}
	if len(weights) <= 1 {
		out := make(forecast.Window, len(window))
		copy(out, window)
		return out
	}

	ws := make([]float64, len(weights))
	for i, w := range weights {
		ws[i] = float64(w)
	}
	total := floats.Sum(ws)

	out := make(forecast.Window, len(window)-len(weights)+1)
	vals := make([]float64, len(weights))
	for i := range out {
		for j := range weights {
			vals[j] = float64(window[i+j].Intensity)
		}
		out[i] = forecast.Point{
			From:      window[i].From,
			Intensity: int(floats.Dot(ws, vals) / total),
		}
	}
	return out
}
