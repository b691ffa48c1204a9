// Package trajectory holds observed dwell-time trajectories and reads them
// from CSV files and collection lists.
package trajectory

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/blinkfit/internal/statespace"
)

// ErrMalformed is returned for trajectories that cannot be evaluated:
// adjacent segments of the same class, unknown class labels, negative or
// non-finite durations, and unreadable files.
var ErrMalformed = errors.New("trajectory: malformed")

// Segment is one observed dwell.
type Segment struct {
	Class    statespace.Class
	Duration float64 // seconds
}

// Trajectory is an ordered sequence of alternating-class segments.
type Trajectory struct {
	Name     string
	Segments []Segment
}

// New validates the segments and returns a trajectory.
func New(name string, segments []Segment) (*Trajectory, error) {
	t := &Trajectory{Name: name, Segments: segments}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks every segment and the class alternation.
func (t *Trajectory) Validate() error {
	for i, s := range t.Segments {
		if !s.Class.Valid() {
			return fmt.Errorf("%w: %s segment %d has class %d", ErrMalformed, t.label(), i, s.Class)
		}
		if math.IsNaN(s.Duration) || math.IsInf(s.Duration, 0) || s.Duration < 0 {
			return fmt.Errorf("%w: %s segment %d has duration %g", ErrMalformed, t.label(), i, s.Duration)
		}
		if i > 0 && t.Segments[i-1].Class == s.Class {
			return fmt.Errorf("%w: %s segments %d and %d are both %s", ErrMalformed, t.label(), i-1, i, s.Class)
		}
	}
	return nil
}

func (t *Trajectory) label() string {
	if t.Name == "" {
		return "trajectory"
	}
	return t.Name
}

// Len returns the number of segments.
func (t *Trajectory) Len() int { return len(t.Segments) }

// StartTimes returns the cumulative start time of every segment; the first
// segment starts at zero.
func (t *Trajectory) StartTimes() []float64 {
	starts := make([]float64, len(t.Segments))
	var acc float64
	for i, s := range t.Segments {
		starts[i] = acc
		acc += s.Duration
	}
	return starts
}

// Duration returns the total observed time.
func (t *Trajectory) Duration() float64 {
	var d float64
	for _, s := range t.Segments {
		d += s.Duration
	}
	return d
}

// Counts returns the number of segments per class.
func (t *Trajectory) Counts() [statespace.NumClasses]int {
	var n [statespace.NumClasses]int
	for _, s := range t.Segments {
		if s.Class.Valid() {
			n[s.Class]++
		}
	}
	return n
}
