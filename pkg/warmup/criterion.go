package warmup

import "math"

// Criterion is the stabilization predicate of the procedure. The right
// criterion is an open methodological question, so it is swappable without
// touching alignment and smoothing.
type Criterion interface {
	// Stabilized scans the smoothed curve and returns the index of the first
	// bin considered stabilized, or false when no such bin exists.
	Stabilized(times, smoothed []float64, steadyState float64) (int, bool)
}

// RelativeThreshold declares the curve stabilized at the first bin whose value
// lies within a relative tolerance of the steady state value. This is the
// default criterion.
type RelativeThreshold struct {
	Tolerance float64
}

// Stabilized implements Criterion.
func (c RelativeThreshold) Stabilized(times, smoothed []float64, steadyState float64) (int, bool) {
	band := math.Abs(steadyState) * c.Tolerance
	for i, value := range smoothed {
		if math.Abs(value-steadyState) <= band {
			return i, true
		}
	}
	return 0, false
}

// SlopeThreshold declares the curve stabilized once its local slope stays
// below a fraction of the steady state value per bin for a run of consecutive
// bins. A heuristic alternative to RelativeThreshold for curves that drift
// slowly into their band.
type SlopeThreshold struct {
	// MaxSlope is the largest tolerated |Δvalue| per bin, as a fraction of
	// the steady state value.
	MaxSlope float64
	// Hold is the number of consecutive bins the slope must stay below
	// MaxSlope.
	Hold int
}

// Stabilized implements Criterion.
func (c SlopeThreshold) Stabilized(times, smoothed []float64, steadyState float64) (int, bool) {
	hold := c.Hold
	if hold < 1 {
		hold = 1
	}
	limit := math.Abs(steadyState) * c.MaxSlope

	flat := 0
	for i := 1; i < len(smoothed); i++ {
		if math.Abs(smoothed[i]-smoothed[i-1]) <= limit {
			flat++
			if flat >= hold {
				return i - flat + 1, true
			}
		} else {
			flat = 0
		}
	}
	return 0, false
}
