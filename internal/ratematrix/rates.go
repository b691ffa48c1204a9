package ratematrix

import (
	"fmt"
	"math"
)

// RateFunc is a per-emitter transition rate as a function of model time.
type RateFunc interface {
	// Rate returns the rate (1/s) at time t.
	Rate(t float64) float64

	// TimeVarying reports whether Rate depends on t.
	TimeVarying() bool
}

// RateFactory returns the rate function for a transition leaving a state
// with the given occupancy counts.
type RateFactory func(counts []int) RateFunc

// Constant is a time-independent rate.
type Constant float64

// Rate returns the constant rate.
func (c Constant) Rate(float64) float64 { return float64(c) }

// TimeVarying is always false.
func (Constant) TimeVarying() bool { return false }

// String implements fmt.Stringer.
func (c Constant) String() string { return fmt.Sprintf("const(%g)", float64(c)) }

// Sigmoid is a logistic rate profile rising from 0 to Max around Midpoint:
//
//	rate(t) = Max / (1 + exp(-Steepness*(t-Midpoint)))
//
// It models an activation laser ramp.
type Sigmoid struct {
	Max       float64
	Midpoint  float64
	Steepness float64
}

// Rate evaluates the logistic profile.
func (s Sigmoid) Rate(t float64) float64 {
	return s.Max / (1 + math.Exp(-s.Steepness*(t-s.Midpoint)))
}

// TimeVarying is true unless the profile is flat.
func (s Sigmoid) TimeVarying() bool { return s.Steepness != 0 }

// String implements fmt.Stringer.
func (s Sigmoid) String() string {
	return fmt.Sprintf("sigmoid(max=%g, mid=%g, k=%g)", s.Max, s.Midpoint, s.Steepness)
}

// Fixed returns a factory that ignores occupancy.
func Fixed(r RateFunc) RateFactory {
	return func([]int) RateFunc { return r }
}

// FromLog10 converts a log10 rate into a Constant.
func FromLog10(logRate float64) Constant {
	return Constant(math.Pow(10, logRate))
}
