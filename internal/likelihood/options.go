package likelihood

import (
	"fmt"
	"time"

	"github.com/banshee-data/blinkfit/internal/config"
	"github.com/banshee-data/blinkfit/internal/expm"
	"github.com/banshee-data/blinkfit/internal/recursion"
	"github.com/banshee-data/blinkfit/internal/timeutil"
)

// Options configures an Engine.
type Options struct {
	Direction        recursion.Direction
	Strategy         expm.Kind
	DiagonalFastPath bool
	Expm             expm.Options
	ActiveCap        int
	Activation       Activation

	// Workers bounds collection parallelism.
	Workers int
	// Judge decides how failed trajectories count in a collection.
	Judge Judge
	// Timeout bounds a whole collection; zero means none.
	Timeout time.Duration
	// CrossCheckTolerance is the accepted forward/backward difference in
	// log10 units.
	CrossCheckTolerance float64

	Clock timeutil.Clock
}

// DefaultOptions returns the built-in defaults, matching the canonical
// configuration file.
func DefaultOptions() Options {
	return Options{
		Direction:        recursion.Forward,
		Strategy:         expm.KindPade,
		DiagonalFastPath: true,
		Expm: expm.Options{
			KrylovDimension:  config.DefaultKrylovDimension,
			KrylovTolerance:  config.DefaultKrylovTolerance,
			KrylovRejections: config.DefaultKrylovRejections,
		},
		Activation:          Activation{Profile: ProfileConstant, Steepness: config.DefaultActivationSteepness},
		Workers:             config.DefaultWorkers,
		Judge:               Strict{},
		CrossCheckTolerance: config.DefaultCrossCheckTolerance,
		Clock:               timeutil.RealClock{},
	}
}

// OptionsFromConfig translates an EngineConfig into engine options and
// returns the configured variant.
func OptionsFromConfig(cfg *config.EngineConfig) (*Variant, Options, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Options{}, fmt.Errorf("invalid configuration: %w", err)
	}
	v, err := LookupVariant(cfg.GetModel())
	if err != nil {
		return nil, Options{}, err
	}
	dir, err := recursion.ParseDirection(cfg.GetDirection())
	if err != nil {
		return nil, Options{}, err
	}
	judge, err := NewJudge(cfg.GetFailurePolicy(), cfg.GetFailurePenalty())
	if err != nil {
		return nil, Options{}, err
	}
	opts := Options{
		Direction:        dir,
		Strategy:         expm.Kind(cfg.GetStrategy()),
		DiagonalFastPath: cfg.GetDiagonalFastPath(),
		Expm: expm.Options{
			KrylovDimension:  cfg.GetKrylovDimension(),
			KrylovTolerance:  cfg.GetKrylovTolerance(),
			KrylovRejections: cfg.GetKrylovRejections(),
		},
		ActiveCap: cfg.GetActiveCap(),
		Activation: Activation{
			Profile:   cfg.GetActivationProfile(),
			Midpoint:  cfg.GetActivationMidpoint(),
			Steepness: cfg.GetActivationSteepness(),
		},
		Workers:             cfg.GetWorkers(),
		Judge:               judge,
		Timeout:             cfg.GetCollectionTimeout(),
		CrossCheckTolerance: cfg.GetCrossCheckTolerance(),
		Clock:               timeutil.RealClock{},
	}
	return v, opts, nil
}
