package likelihood

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/blinkfit/internal/expm"
	"github.com/banshee-data/blinkfit/internal/ratematrix"
	"github.com/banshee-data/blinkfit/internal/recursion"
	"github.com/banshee-data/blinkfit/internal/statespace"
)

// Activation profiles.
const (
	ProfileConstant = "constant"
	ProfileSigmoid  = "sigmoid"
)

// Activation shapes the activation rate over model time. The constant
// profile uses 10^log_ka throughout; the sigmoid ramps up to it around
// Midpoint with the given Steepness.
type Activation struct {
	Profile   string
	Midpoint  float64
	Steepness float64
}

func (a Activation) validate() error {
	switch strings.ToLower(a.Profile) {
	case "", ProfileConstant:
		return nil
	case ProfileSigmoid:
		if !(a.Steepness > 0) || math.IsInf(a.Steepness, 0) || math.IsNaN(a.Midpoint) || math.IsInf(a.Midpoint, 0) {
			return fmt.Errorf("likelihood: sigmoid activation needs finite midpoint and positive steepness, got %g, %g", a.Midpoint, a.Steepness)
		}
		return nil
	default:
		return fmt.Errorf("likelihood: unknown activation profile %q", a.Profile)
	}
}

func (a Activation) rate(logKa float64) ratematrix.RateFunc {
	if strings.EqualFold(a.Profile, ProfileSigmoid) {
		return ratematrix.Sigmoid{Max: math.Pow(10, logKa), Midpoint: a.Midpoint, Steepness: a.Steepness}
	}
	return ratematrix.FromLog10(logKa)
}

// Model binds one parameter set to its state space, generator builder and
// exponential strategies. It owns every cache it uses and must not be
// shared between goroutines.
type Model struct {
	params    ParameterSet
	space     *statespace.Space
	builder   *ratematrix.Builder
	predictor *expm.Predictor
}

var _ recursion.Model = (*Model)(nil)

// NewModel assembles a model for p.
func NewModel(p ParameterSet, opts Options) (*Model, error) {
	if err := opts.Activation.validate(); err != nil {
		return nil, err
	}
	v := p.Variant
	space, err := statespace.Enumerate(v.Species, p.N, statespace.Options{ActiveCap: opts.ActiveCap})
	if err != nil {
		return nil, fmt.Errorf("likelihood: %s: %w", v.Name, err)
	}
	builder, err := ratematrix.NewBuilder(space, v.Transitions(p, opts.Activation))
	if err != nil {
		return nil, fmt.Errorf("likelihood: %s: %w", v.Name, err)
	}
	general, err := expm.New(opts.Strategy, opts.Expm)
	if err != nil {
		return nil, err
	}
	var diagonal expm.Strategy
	if opts.DiagonalFastPath {
		diagonal = expm.NewDiagonal()
	}
	return &Model{
		params:    p,
		space:     space,
		builder:   builder,
		predictor: expm.NewPredictor(general, diagonal, v.Uncoupled...),
	}, nil
}

// Params returns the parameter set the model was built from.
func (m *Model) Params() ParameterSet { return m.params }

// Space implements recursion.Model.
func (m *Model) Space() *statespace.Space { return m.space }

// Generator implements recursion.Model.
func (m *Model) Generator(t float64) (*ratematrix.Generator, error) { return m.builder.At(t) }

// Strategy implements recursion.Model.
func (m *Model) Strategy(c statespace.Class) expm.Strategy { return m.predictor.For(c) }

// Builder exposes the generator builder for diagnostics.
func (m *Model) Builder() *ratematrix.Builder { return m.builder }
