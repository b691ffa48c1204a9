package likelihood

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/blinkfit/internal/monitoring"
	"github.com/banshee-data/blinkfit/internal/trajectory"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyCollection is returned when no trajectory contributes to a mean.
var ErrEmptyCollection = errors.New("likelihood: empty collection")

// Outcome is the evaluation of one trajectory in a collection.
type Outcome struct {
	Index         int
	Name          string
	LogLikelihood float64
	Floored       bool
	Err           error
	Elapsed       time.Duration

	// Score and Included are the judge's verdict.
	Score    float64
	Included bool
}

// CollectionResult is the judged mean over a collection.
type CollectionResult struct {
	Mean     float64
	Outcomes []Outcome // in input order
	Included int
	Failed   int
	Policy   string
}

// EvaluateCollection evaluates every trajectory independently, at most
// Options.Workers at a time, each with its own model. The mean is taken
// over the judged scores in input order, so it does not depend on
// scheduling.
func (e *Engine) EvaluateCollection(ctx context.Context, x []float64, trs []*trajectory.Trajectory) (CollectionResult, error) {
	p, err := e.Params(x)
	if err != nil {
		return CollectionResult{}, err
	}
	if len(trs) == 0 {
		return CollectionResult{}, fmt.Errorf("%w: no trajectories", ErrEmptyCollection)
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	judge := e.opts.Judge
	outcomes := make([]Outcome, len(trs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	scheduled := 0
	for i, tr := range trs {
		if gctx.Err() != nil {
			break
		}
		scheduled++
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o := e.outcome(p, i, tr)
			score, include, err := judge.Score(o)
			if err != nil {
				return err
			}
			o.Score, o.Included = score, include
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CollectionResult{Outcomes: outcomes, Policy: judge.Policy()}, err
	}
	if scheduled < len(trs) {
		return CollectionResult{Outcomes: outcomes, Policy: judge.Policy()}, context.Cause(gctx)
	}

	res := CollectionResult{Outcomes: outcomes, Policy: judge.Policy()}
	var sum float64
	for _, o := range outcomes {
		if o.Err != nil {
			res.Failed++
		}
		if o.Included {
			res.Included++
			sum += o.Score
		}
	}
	if res.Included == 0 {
		return res, fmt.Errorf("%w: all %d trajectories failed", ErrEmptyCollection, len(trs))
	}
	res.Mean = sum / float64(res.Included)
	monitoring.Debugf("likelihood: %s mean %g over %d/%d trajectories (%d failed, policy %s)",
		p, res.Mean, res.Included, len(trs), res.Failed, res.Policy)
	return res, nil
}

func (e *Engine) outcome(p ParameterSet, i int, tr *trajectory.Trajectory) Outcome {
	o := Outcome{Index: i}
	if tr != nil {
		o.Name = tr.Name
	}
	start := e.opts.Clock.Now()
	res, err := e.evaluate(p, tr, e.opts.Direction)
	o.Elapsed = e.opts.Clock.Since(start)
	if err != nil {
		o.Err = err
		monitoring.Debugf("likelihood: trajectory %d (%s) failed: %v", i, o.Name, err)
		return o
	}
	o.LogLikelihood = res.LogLikelihood
	o.Floored = res.Floored
	return o
}
