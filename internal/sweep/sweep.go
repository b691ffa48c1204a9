// Package sweep profiles the collection likelihood along one parameter
// with the others held fixed, and renders the profile as CSV, PNG and HTML.
package sweep

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/banshee-data/blinkfit/internal/likelihood"
	"github.com/banshee-data/blinkfit/internal/monitoring"
	"github.com/banshee-data/blinkfit/internal/trajectory"
)

// MaxPoints bounds the number of values a range may expand to.
const MaxPoints = 10000

// ParseRange parses "start:end:step" (inclusive of end when it lies on the
// grid) or a comma-separated list of values.
func ParseRange(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("sweep: empty range")
	}
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("sweep: range %q must be start:end:step", s)
		}
		var bounds [3]float64
		for i, p := range parts {
			v, err := parseFinite(p)
			if err != nil {
				return nil, fmt.Errorf("sweep: range %q: %w", s, err)
			}
			bounds[i] = v
		}
		start, end, step := bounds[0], bounds[1], bounds[2]
		if !(step > 0) {
			return nil, fmt.Errorf("sweep: range %q needs a positive step", s)
		}
		if end < start {
			return nil, fmt.Errorf("sweep: range %q ends before it starts", s)
		}
		n := int(math.Floor((end-start)/step+1e-9)) + 1
		if n > MaxPoints {
			return nil, fmt.Errorf("sweep: range %q has %d points (max %d)", s, n, MaxPoints)
		}
		values := make([]float64, n)
		for i := range values {
			values[i] = start + float64(i)*step
		}
		return values, nil
	}

	var values []float64
	for _, p := range strings.Split(s, ",") {
		v, err := parseFinite(p)
		if err != nil {
			return nil, fmt.Errorf("sweep: list %q: %w", s, err)
		}
		values = append(values, v)
	}
	if len(values) > MaxPoints {
		return nil, fmt.Errorf("sweep: list has %d points (max %d)", len(values), MaxPoints)
	}
	return values, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %q is not finite", s)
	}
	return v, nil
}

// Point is the collection result at one parameter value.
type Point struct {
	Value    float64
	Mean     float64 // NaN when Err is set
	Included int
	Failed   int
	Err      error
}

// Profile is a likelihood profile along one parameter.
type Profile struct {
	Model  string
	Param  string
	Base   []float64
	Points []Point
}

// Run evaluates the collection at every value of param, starting from
// base. A point whose collection fails is recorded with its error; only
// context cancellation stops the sweep.
func Run(ctx context.Context, e *likelihood.Engine, base []float64, param string, values []float64, trs []*trajectory.Trajectory) (*Profile, error) {
	schema := e.Variant().Schema()
	idx := slices.Index(schema, param)
	if idx < 0 {
		return nil, fmt.Errorf("sweep: %s has no parameter %q (have %s)", e.Variant().Name, param, strings.Join(schema, ", "))
	}
	if _, err := e.Params(base); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("sweep: no values")
	}

	prof := &Profile{Model: e.Variant().Name, Param: param, Base: append([]float64(nil), base...)}
	x := append([]float64(nil), base...)
	for i, v := range values {
		if err := ctx.Err(); err != nil {
			return prof, err
		}
		x[idx] = v
		res, err := e.EvaluateCollection(ctx, x, trs)
		if err != nil && ctx.Err() != nil {
			return prof, ctx.Err()
		}
		pt := Point{Value: v, Mean: res.Mean, Included: res.Included, Failed: res.Failed, Err: err}
		if err != nil {
			pt.Mean = math.NaN()
		}
		prof.Points = append(prof.Points, pt)
		monitoring.Debugf("sweep: %s=%g (%d/%d) mean %g", param, v, i+1, len(values), pt.Mean)
	}
	return prof, nil
}

// Best returns the point with the highest mean log-likelihood.
func (p *Profile) Best() (Point, bool) {
	var best Point
	found := false
	for _, pt := range p.Points {
		if pt.Err != nil {
			continue
		}
		if !found || pt.Mean > best.Mean {
			best, found = pt, true
		}
	}
	return best, found
}
