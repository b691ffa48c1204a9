package likelihood

import (
	"fmt"
	"math"

	"github.com/banshee-data/blinkfit/internal/expm"
	"github.com/banshee-data/blinkfit/internal/monitoring"
	"github.com/banshee-data/blinkfit/internal/recursion"
	"github.com/banshee-data/blinkfit/internal/timeutil"
	"github.com/banshee-data/blinkfit/internal/trajectory"
)

// Engine evaluates parameter vectors of one variant against trajectories.
// It holds no mutable state and may be shared between goroutines.
type Engine struct {
	variant *Variant
	opts    Options
}

// NewEngine validates the options and returns an engine. Zero-valued
// optional fields take their defaults.
func NewEngine(v *Variant, opts Options) (*Engine, error) {
	if v == nil {
		return nil, fmt.Errorf("likelihood: nil variant")
	}
	if opts.Strategy == expm.KindDiagonal {
		return nil, fmt.Errorf("likelihood: %s cannot be the general strategy: %w", opts.Strategy, expm.ErrCoupledBlock)
	}
	if _, err := expm.New(opts.Strategy, opts.Expm); err != nil {
		return nil, err
	}
	if opts.Direction != recursion.Forward && opts.Direction != recursion.Backward {
		return nil, fmt.Errorf("likelihood: unknown direction %s", opts.Direction)
	}
	if err := opts.Activation.validate(); err != nil {
		return nil, err
	}
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.Judge == nil {
		opts.Judge = def.Judge
	}
	if !(opts.CrossCheckTolerance > 0) {
		opts.CrossCheckTolerance = def.CrossCheckTolerance
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Engine{variant: v, opts: opts}, nil
}

// Variant returns the engine's model variant.
func (e *Engine) Variant() *Variant { return e.variant }

// Options returns the engine options after defaulting.
func (e *Engine) Options() Options { return e.opts }

// Params validates a raw parameter vector against the engine's variant.
func (e *Engine) Params(x []float64) (ParameterSet, error) {
	return FromVector(e.variant, x)
}

// NewModel builds a fresh model for x.
func (e *Engine) NewModel(x []float64) (*Model, error) {
	p, err := e.Params(x)
	if err != nil {
		return nil, err
	}
	return NewModel(p, e.opts)
}

// Evaluate returns log10 L of tr under the parameters x.
func (e *Engine) Evaluate(x []float64, tr *trajectory.Trajectory) (float64, error) {
	res, err := e.EvaluateResult(x, tr)
	if err != nil {
		return math.NaN(), err
	}
	return res.LogLikelihood, nil
}

// EvaluateResult is Evaluate with the scaling coefficients retained.
func (e *Engine) EvaluateResult(x []float64, tr *trajectory.Trajectory) (recursion.Result, error) {
	p, err := e.Params(x)
	if err != nil {
		return recursion.Result{}, err
	}
	return e.evaluate(p, tr, e.opts.Direction)
}

func (e *Engine) evaluate(p ParameterSet, tr *trajectory.Trajectory, d recursion.Direction) (recursion.Result, error) {
	if err := validate(tr); err != nil {
		return recursion.Result{}, err
	}
	m, err := NewModel(p, e.opts)
	if err != nil {
		return recursion.Result{}, err
	}
	return e.run(m, tr, d)
}

func (e *Engine) run(m *Model, tr *trajectory.Trajectory, d recursion.Direction) (recursion.Result, error) {
	res, err := recursion.Run(d, m, tr)
	if err != nil {
		return recursion.Result{}, fmt.Errorf("trajectory %s: %w", label(tr), err)
	}
	if res.Floored {
		monitoring.Debugf("likelihood: %s %s floored at %g", label(tr), d, res.LogLikelihood)
	}
	return res, nil
}

func validate(tr *trajectory.Trajectory) error {
	if tr == nil {
		return fmt.Errorf("%w: nil trajectory", trajectory.ErrMalformed)
	}
	return tr.Validate()
}

func label(tr *trajectory.Trajectory) string {
	if tr.Name == "" {
		return "<unnamed>"
	}
	return tr.Name
}

// CrossCheckResult compares the two recursion directions on one trajectory.
type CrossCheckResult struct {
	Forward    recursion.Result
	Backward   recursion.Result
	Difference float64 // |forward - backward| in log10 units
	Tolerance  float64
	Agree      bool
}

// CrossCheck evaluates tr in both directions with one model.
func (e *Engine) CrossCheck(x []float64, tr *trajectory.Trajectory) (CrossCheckResult, error) {
	p, err := e.Params(x)
	if err != nil {
		return CrossCheckResult{}, err
	}
	if err := validate(tr); err != nil {
		return CrossCheckResult{}, err
	}
	m, err := NewModel(p, e.opts)
	if err != nil {
		return CrossCheckResult{}, err
	}
	fwd, err := e.run(m, tr, recursion.Forward)
	if err != nil {
		return CrossCheckResult{}, err
	}
	bwd, err := e.run(m, tr, recursion.Backward)
	if err != nil {
		return CrossCheckResult{}, err
	}
	diff := math.Abs(fwd.LogLikelihood - bwd.LogLikelihood)
	out := CrossCheckResult{
		Forward:    fwd,
		Backward:   bwd,
		Difference: diff,
		Tolerance:  e.opts.CrossCheckTolerance,
		Agree:      diff <= e.opts.CrossCheckTolerance,
	}
	if !out.Agree {
		monitoring.Logf("likelihood: %s forward %g and backward %g differ by %g (tolerance %g)",
			label(tr), fwd.LogLikelihood, bwd.LogLikelihood, diff, out.Tolerance)
	}
	return out, nil
}
