// Package recursion turns a trajectory into a log-likelihood by propagating
// a scaled probability vector through the class blocks of the generator.
//
// For a trajectory of segments (a_k, t_k) the likelihood is
//
//	L = p0[a_0] · Π_k exp(Q_{a_k a_k} t_k) · Q_{a_k a_{k+1}} · 1
//
// where the jump factor is omitted after the last segment. The forward
// pass evaluates the product left to right with row vectors, the backward
// pass right to left with column vectors. Both rescale after every segment
// and return log10 L.
package recursion

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/blinkfit/internal/expm"
	"github.com/banshee-data/blinkfit/internal/monitoring"
	"github.com/banshee-data/blinkfit/internal/ratematrix"
	"github.com/banshee-data/blinkfit/internal/statespace"
	"github.com/banshee-data/blinkfit/internal/trajectory"
	"gonum.org/v1/gonum/floats"
)

// AlmostZero is the floor applied to vanishing sums. A likelihood that hits
// it is reported as log10(AlmostZero) plus the accumulated scaling, not as
// an error.
const AlmostZero = 1e-300

// Model is what the recursion needs from a likelihood model.
type Model interface {
	// Space returns the model's state space.
	Space() *statespace.Space

	// Generator returns Q(t).
	Generator(t float64) (*ratematrix.Generator, error)

	// Strategy returns the exponential strategy for dwells in class c.
	Strategy(c statespace.Class) expm.Strategy
}

// Direction selects the pass.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Directions lists both passes.
var Directions = []Direction{Forward, Backward}

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection parses "forward" or "backward".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward":
		return Forward, nil
	case "backward":
		return Backward, nil
	default:
		return 0, fmt.Errorf("recursion: unknown direction %q", s)
	}
}

// Result is the outcome of one pass.
type Result struct {
	// LogLikelihood is log10 L.
	LogLikelihood float64
	// Coefficients holds the scaling factor applied after each segment, in
	// the order the pass visited them.
	Coefficients []float64
	// Segments is the number of segments evaluated.
	Segments  int
	Direction Direction
	// Floored reports that a vanishing sum hit AlmostZero.
	Floored bool
}

// Run dispatches to Forward or Backward.
func Run(d Direction, m Model, tr *trajectory.Trajectory) (Result, error) {
	switch d {
	case Forward:
		return RunForward(m, tr)
	case Backward:
		return RunBackward(m, tr)
	default:
		return Result{}, fmt.Errorf("recursion: unknown direction %d", int(d))
	}
}

// scaler accumulates scaling coefficients and their log10 sum.
type scaler struct {
	coeffs  []float64
	logSum  float64
	floored bool
}

func (s *scaler) scale(v []float64) {
	sum := floats.Sum(v)
	c := 1 / sum
	if !(sum >= AlmostZero) {
		c = 1 / AlmostZero
		s.floored = true
	}
	floats.Scale(c, v)
	s.coeffs = append(s.coeffs, c)
	s.logSum += math.Log10(c)
}

// result reconstructs log10 L and clamps it at log10(AlmostZero). A vector
// that vanished entirely lands on the same floor, so log10 L never
// increases as the data gets less likely.
func (s *scaler) result(d Direction, n int, terminal float64) Result {
	floor := math.Log10(AlmostZero)
	logL := floor
	if terminal > 0 {
		logL = math.Log10(terminal) - s.logSum
	}
	if !(logL > floor) {
		logL = floor
		s.floored = true
	}
	return Result{
		LogLikelihood: logL,
		Coefficients:  s.coeffs,
		Segments:      n,
		Direction:     d,
		Floored:       s.floored,
	}
}

// unreachable is the result for a trajectory that visits a class with no
// states, e.g. a bright dwell for zero emitters.
func unreachable(d Direction, n int, c statespace.Class) Result {
	monitoring.Debugf("recursion: %s pass visits empty class %s", d, c)
	return Result{LogLikelihood: math.Log10(AlmostZero), Segments: n, Direction: d, Floored: true}
}

func checkClasses(space *statespace.Space, tr *trajectory.Trajectory) (statespace.Class, bool) {
	for _, s := range tr.Segments {
		if space.Range(s.Class).Empty() {
			return s.Class, false
		}
	}
	return 0, true
}

// RunForward evaluates the trajectory left to right:
// α ← α·exp(Q_aa t_k), then α ← α·Q_ab when a next segment exists.
func RunForward(m Model, tr *trajectory.Trajectory) (Result, error) {
	space := m.Space()
	segs := tr.Segments
	n := len(segs)
	if n == 0 {
		return Result{LogLikelihood: math.Log10(floats.Sum(space.InitialVector())), Direction: Forward}, nil
	}
	if c, ok := checkClasses(space, tr); !ok {
		return unreachable(Forward, n, c), nil
	}

	starts := tr.StartTimes()
	alpha := space.Restrict(space.InitialVector(), segs[0].Class)
	var sc scaler
	for k, seg := range segs {
		g, err := m.Generator(starts[k])
		if err != nil {
			return Result{}, fmt.Errorf("segment %d: %w", k, err)
		}
		a := seg.Class
		alpha, err = m.Strategy(a).VecExp(g.Block(a, a), seg.Duration, alpha)
		if err != nil {
			return Result{}, fmt.Errorf("segment %d (%s, %gs): %w", k, a, seg.Duration, err)
		}
		if k+1 < n {
			alpha = g.Block(a, segs[k+1].Class).VecMul(alpha)
		}
		sc.scale(alpha)
	}
	return sc.result(Forward, n, floats.Sum(alpha)), nil
}

// RunBackward evaluates the trajectory right to left:
// β ← exp(Q_aa t_k)·β, then β ← Q_{prev,a}·β when a previous segment
// exists. The jump into segment k uses the generator at the previous
// segment's start, as in the forward pass.
func RunBackward(m Model, tr *trajectory.Trajectory) (Result, error) {
	space := m.Space()
	segs := tr.Segments
	n := len(segs)
	if n == 0 {
		return Result{LogLikelihood: math.Log10(floats.Sum(space.InitialVector())), Direction: Backward}, nil
	}
	if c, ok := checkClasses(space, tr); !ok {
		return unreachable(Backward, n, c), nil
	}

	starts := tr.StartTimes()
	last := segs[n-1].Class
	beta := make([]float64, space.Range(last).Len())
	for i := range beta {
		beta[i] = 1
	}
	var sc scaler
	for k := n - 1; k >= 0; k-- {
		seg := segs[k]
		a := seg.Class
		g, err := m.Generator(starts[k])
		if err != nil {
			return Result{}, fmt.Errorf("segment %d: %w", k, err)
		}
		beta, err = m.Strategy(a).ExpVec(g.Block(a, a), seg.Duration, beta)
		if err != nil {
			return Result{}, fmt.Errorf("segment %d (%s, %gs): %w", k, a, seg.Duration, err)
		}
		if k > 0 {
			prev := segs[k-1].Class
			gp, err := m.Generator(starts[k-1])
			if err != nil {
				return Result{}, fmt.Errorf("segment %d: %w", k-1, err)
			}
			beta = gp.Block(prev, a).MulVec(beta)
		}
		sc.scale(beta)
	}
	alpha0 := space.Restrict(space.InitialVector(), segs[0].Class)
	return sc.result(Backward, n, floats.Dot(alpha0, beta)), nil
}
