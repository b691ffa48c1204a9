package likelihood

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/blinkfit/internal/monitoring"
	"github.com/banshee-data/blinkfit/internal/trajectory"
	"gonum.org/v1/gonum/optimize"
)

// FailureObjective is the value Objective reports for parameter vectors
// whose collection cannot be evaluated. It is finite so simplex methods
// can move away from it.
const FailureObjective = 1e12

// Objective is the negated mean log10 likelihood of a collection as a
// function of the log-rates, with N held fixed.
type Objective struct {
	ctx    context.Context
	engine *Engine
	base   ParameterSet
	trajs  []*trajectory.Trajectory

	evaluations int
	lastErr     error
}

// NewObjective fixes N and the collection. start supplies N and the
// variant; its log-rates are only a starting point.
func (e *Engine) NewObjective(ctx context.Context, start []float64, trs []*trajectory.Trajectory) (*Objective, error) {
	p, err := e.Params(start)
	if err != nil {
		return nil, err
	}
	if len(trs) == 0 {
		return nil, fmt.Errorf("%w: no trajectories", ErrEmptyCollection)
	}
	return &Objective{ctx: ctx, engine: e, base: p, trajs: trs}, nil
}

// Func evaluates the objective at a log-rate vector.
func (o *Objective) Func(logRates []float64) float64 {
	o.evaluations++
	p, err := o.base.WithLogRates(logRates)
	if err != nil {
		o.lastErr = err
		return FailureObjective
	}
	res, err := o.engine.EvaluateCollection(o.ctx, p.Vector(), o.trajs)
	if err != nil {
		o.lastErr = err
		monitoring.Debugf("likelihood: objective failed at %s: %v", p, err)
		return FailureObjective
	}
	return -res.Mean
}

// Evaluations returns the number of Func calls.
func (o *Objective) Evaluations() int { return o.evaluations }

// Err returns the most recent evaluation failure, if any.
func (o *Objective) Err() error { return o.lastErr }

// Problem adapts the objective to gonum/optimize. The status hook stops
// the run once the context is done.
func (o *Objective) Problem() optimize.Problem {
	return optimize.Problem{
		Func: o.Func,
		Status: func() (optimize.Status, error) {
			if err := o.ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
}

// FitSettings bounds a fit.
type FitSettings struct {
	// MaxEvaluations caps objective evaluations; zero means 200.
	MaxEvaluations int
	// Absolute is the function convergence threshold in log10 units; zero
	// means 1e-4.
	Absolute float64
}

// FitResult is the outcome of Fit.
type FitResult struct {
	Params      ParameterSet
	Mean        float64 // mean log10 L at Params
	StartMean   float64
	Evaluations int
	Status      string
}

// Fit maximizes the mean log-likelihood over the log-rates with
// Nelder-Mead, starting from start and keeping its N. The result is never
// worse than the start.
func (e *Engine) Fit(ctx context.Context, start []float64, trs []*trajectory.Trajectory, fs FitSettings) (FitResult, error) {
	obj, err := e.NewObjective(ctx, start, trs)
	if err != nil {
		return FitResult{}, err
	}
	startValue := obj.Func(obj.base.LogRates)
	if startValue >= FailureObjective {
		return FitResult{}, fmt.Errorf("likelihood: fit start %s cannot be evaluated: %w", obj.base, obj.Err())
	}

	if fs.MaxEvaluations <= 0 {
		fs.MaxEvaluations = 200
	}
	if !(fs.Absolute > 0) {
		fs.Absolute = 1e-4
	}
	settings := &optimize.Settings{
		FuncEvaluations: fs.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   fs.Absolute,
			Iterations: 20,
		},
	}
	initX := append([]float64(nil), obj.base.LogRates...)
	res, err := optimize.Minimize(obj.Problem(), initX, settings, &optimize.NelderMead{})
	if err != nil && ctx.Err() != nil {
		return FitResult{}, ctx.Err()
	}
	if err != nil {
		monitoring.Logf("likelihood: optimizer stopped early: %v", err)
	}

	out := FitResult{Params: obj.base, Mean: -startValue, StartMean: -startValue, Status: "start"}
	if res != nil {
		out.Status = res.Status.String()
		if res.F < startValue && !math.IsNaN(res.F) {
			best, perr := obj.base.WithLogRates(res.X)
			if perr == nil {
				out.Params = best
				out.Mean = -res.F
			}
		}
	}
	out.Evaluations = obj.Evaluations()
	return out, nil
}
