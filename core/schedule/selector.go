package schedule

import (
	"time"

	"github.com/loadshift/loadshift/core/forecast"
)

// Select scans the window in timestamp order up to dueBy and returns the
// chosen execution slot together with the highest intensity seen.
//
// A point replaces the current choice only when it undercuts the choice
// scaled by the tolerance percentage (strict comparison, integer truncation
// toward zero). The threshold tracks the current choice, not the global
// minimum, so the chosen slot steps through tolerance-beating points in scan
// order; the two rules are not equivalent. The first point is always a legal
// fallback, and the point that overruns dueBy is excluded from the scan.
//
// The window must be non-empty.
func Select(window forecast.Window, dueBy time.Time, tolerancePct, worstSoFar int) (forecast.Point, int) {
	chosen := window[0]
	worst := worstSoFar

	for _, p := range window {
		if p.From.After(dueBy) {
			break
		}
		threshold := int(float64(chosen.Intensity) * (1 - float64(tolerancePct)/100))
		if p.Intensity < threshold {
			chosen = p
		}
		if p.Intensity > worst {
			worst = p.Intensity
		}
	}
	return chosen, worst
}
