// Package config loads engine configuration from JSON.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// DefaultConfigPath is the path to the canonical engine defaults file.
const DefaultConfigPath = "config/engine.defaults.json"

// Defaults used when a field is absent.
const (
	DefaultModel               = "single-dark"
	DefaultDirection           = "forward"
	DefaultStrategy            = "pade"
	DefaultKrylovDimension     = 30
	DefaultKrylovTolerance     = 1e-7
	DefaultKrylovRejections    = 10
	DefaultActivationProfile   = "constant"
	DefaultActivationSteepness = 1.0
	DefaultWorkers             = 4
	DefaultFailurePolicy       = "strict"
	DefaultFailurePenalty      = -300.0
	DefaultCrossCheckTolerance = 0.1
	DefaultStorePath           = "blinkfit.db"
)

// Accepted enumeration values. Strategies lists the general strategies;
// "diagonal" only serves uncoupled classes through diagonal_fast_path, so it
// is not accepted here.
var (
	Directions         = []string{"forward", "backward"}
	Strategies         = []string{"eigen", "krylov", "pade"}
	ActivationProfiles = []string{"constant", "sigmoid"}
	FailurePolicies    = []string{"strict", "exclude", "penalty"}
)

// EngineConfig is the on-disk engine configuration. Every field is
// optional; the Get* methods supply defaults for absent fields, so partial
// files are safe.
type EngineConfig struct {
	// Model
	Model     *string `json:"model,omitempty"`
	ActiveCap *int    `json:"active_cap,omitempty"`

	// Activation rate profile: "constant" or "sigmoid" ramping up to the
	// activation rate around the midpoint (seconds).
	ActivationProfile   *string  `json:"activation_profile,omitempty"`
	ActivationMidpoint  *float64 `json:"activation_midpoint,omitempty"`
	ActivationSteepness *float64 `json:"activation_steepness,omitempty"`

	// Numerics
	Direction        *string  `json:"direction,omitempty"`
	Strategy         *string  `json:"strategy,omitempty"`
	DiagonalFastPath *bool    `json:"diagonal_fast_path,omitempty"`
	KrylovDimension  *int     `json:"krylov_dimension,omitempty"`
	KrylovTolerance  *float64 `json:"krylov_tolerance,omitempty"`
	KrylovRejections *int     `json:"krylov_rejections,omitempty"`

	// Collections
	Workers           *int     `json:"workers,omitempty"`
	FailurePolicy     *string  `json:"failure_policy,omitempty"`
	FailurePenalty    *float64 `json:"failure_penalty,omitempty"`
	CollectionTimeout *string  `json:"collection_timeout,omitempty"` // duration string like "2m"

	CrossCheckTolerance *float64 `json:"crosscheck_tolerance,omitempty"`
	StorePath           *string  `json:"store_path,omitempty"`
}

// EmptyEngineConfig returns a config with every field unset.
func EmptyEngineConfig() *EngineConfig {
	return &EngineConfig{}
}

// LoadEngineConfig loads and validates an EngineConfig from a JSON file.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseEngineConfig(data)
}

// ParseEngineConfig decodes and validates JSON config data. Unknown keys
// are rejected so typos do not silently fall back to defaults.
func ParseEngineConfig(data []byte) (*EngineConfig, error) {
	cfg := EmptyEngineConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// working directory. It panics when the file cannot be found and is meant
// for tests and tools run inside the repository.
func MustLoadDefaultConfig() *EngineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadEngineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from the repository")
}

func oneOf(field, v string, allowed []string) error {
	if !slices.Contains(allowed, v) {
		return fmt.Errorf("%s must be one of %v, got %q", field, allowed, v)
	}
	return nil
}

// Validate checks every set field.
func (c *EngineConfig) Validate() error {
	if c.Model != nil && *c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.ActiveCap != nil && *c.ActiveCap < 0 {
		return fmt.Errorf("active_cap must be non-negative, got %d", *c.ActiveCap)
	}
	if c.ActivationProfile != nil {
		if err := oneOf("activation_profile", *c.ActivationProfile, ActivationProfiles); err != nil {
			return err
		}
	}
	if c.ActivationMidpoint != nil && (math.IsNaN(*c.ActivationMidpoint) || math.IsInf(*c.ActivationMidpoint, 0)) {
		return fmt.Errorf("activation_midpoint must be finite, got %f", *c.ActivationMidpoint)
	}
	if c.ActivationSteepness != nil && !(*c.ActivationSteepness > 0) {
		return fmt.Errorf("activation_steepness must be positive, got %f", *c.ActivationSteepness)
	}
	if c.Direction != nil {
		if err := oneOf("direction", *c.Direction, Directions); err != nil {
			return err
		}
	}
	if c.Strategy != nil {
		if *c.Strategy == "diagonal" {
			return fmt.Errorf("strategy %q cannot exponentiate coupled blocks; use diagonal_fast_path", *c.Strategy)
		}
		if err := oneOf("strategy", *c.Strategy, Strategies); err != nil {
			return err
		}
	}
	if c.KrylovDimension != nil && *c.KrylovDimension < 2 {
		return fmt.Errorf("krylov_dimension must be at least 2, got %d", *c.KrylovDimension)
	}
	if c.KrylovTolerance != nil && !(*c.KrylovTolerance > 0 && *c.KrylovTolerance < 1) {
		return fmt.Errorf("krylov_tolerance must be in (0, 1), got %g", *c.KrylovTolerance)
	}
	if c.KrylovRejections != nil && *c.KrylovRejections < 1 {
		return fmt.Errorf("krylov_rejections must be positive, got %d", *c.KrylovRejections)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", *c.Workers)
	}
	if c.FailurePolicy != nil {
		if err := oneOf("failure_policy", *c.FailurePolicy, FailurePolicies); err != nil {
			return err
		}
	}
	if c.FailurePenalty != nil && (math.IsNaN(*c.FailurePenalty) || math.IsInf(*c.FailurePenalty, 0)) {
		return fmt.Errorf("failure_penalty must be finite, got %f", *c.FailurePenalty)
	}
	if c.CollectionTimeout != nil && *c.CollectionTimeout != "" {
		if _, err := time.ParseDuration(*c.CollectionTimeout); err != nil {
			return fmt.Errorf("invalid collection_timeout '%s': %w", *c.CollectionTimeout, err)
		}
	}
	if c.CrossCheckTolerance != nil && !(*c.CrossCheckTolerance > 0) {
		return fmt.Errorf("crosscheck_tolerance must be positive, got %f", *c.CrossCheckTolerance)
	}
	return nil
}

// GetModel returns the model variant name or the default.
func (c *EngineConfig) GetModel() string {
	if c.Model == nil {
		return DefaultModel
	}
	return *c.Model
}

// GetActiveCap returns the active-occupancy cap; zero means unbounded.
func (c *EngineConfig) GetActiveCap() int {
	if c.ActiveCap == nil {
		return 0
	}
	return *c.ActiveCap
}

// GetActivationProfile returns the activation profile or the default.
func (c *EngineConfig) GetActivationProfile() string {
	if c.ActivationProfile == nil {
		return DefaultActivationProfile
	}
	return *c.ActivationProfile
}

// GetActivationMidpoint returns the sigmoid midpoint in seconds.
func (c *EngineConfig) GetActivationMidpoint() float64 {
	if c.ActivationMidpoint == nil {
		return 0
	}
	return *c.ActivationMidpoint
}

// GetActivationSteepness returns the sigmoid steepness in 1/s.
func (c *EngineConfig) GetActivationSteepness() float64 {
	if c.ActivationSteepness == nil {
		return DefaultActivationSteepness
	}
	return *c.ActivationSteepness
}

// GetDirection returns the recursion direction or the default.
func (c *EngineConfig) GetDirection() string {
	if c.Direction == nil {
		return DefaultDirection
	}
	return *c.Direction
}

// GetStrategy returns the general exponential strategy or the default.
func (c *EngineConfig) GetStrategy() string {
	if c.Strategy == nil {
		return DefaultStrategy
	}
	return *c.Strategy
}

// GetDiagonalFastPath reports whether uncoupled classes use the diagonal
// strategy. Enabled by default.
func (c *EngineConfig) GetDiagonalFastPath() bool {
	if c.DiagonalFastPath == nil {
		return true
	}
	return *c.DiagonalFastPath
}

// GetKrylovDimension returns the Krylov subspace dimension or the default.
func (c *EngineConfig) GetKrylovDimension() int {
	if c.KrylovDimension == nil {
		return DefaultKrylovDimension
	}
	return *c.KrylovDimension
}

// GetKrylovTolerance returns the Krylov local error tolerance or the default.
func (c *EngineConfig) GetKrylovTolerance() float64 {
	if c.KrylovTolerance == nil {
		return DefaultKrylovTolerance
	}
	return *c.KrylovTolerance
}

// GetKrylovRejections returns the per-step rejection budget or the default.
func (c *EngineConfig) GetKrylovRejections() int {
	if c.KrylovRejections == nil {
		return DefaultKrylovRejections
	}
	return *c.KrylovRejections
}

// GetWorkers returns the collection parallelism or the default.
func (c *EngineConfig) GetWorkers() int {
	if c.Workers == nil {
		return DefaultWorkers
	}
	return *c.Workers
}

// GetFailurePolicy returns the collection failure policy or the default.
func (c *EngineConfig) GetFailurePolicy() string {
	if c.FailurePolicy == nil {
		return DefaultFailurePolicy
	}
	return *c.FailurePolicy
}

// GetFailurePenalty returns the log10 score assigned to failed
// trajectories under the penalty policy.
func (c *EngineConfig) GetFailurePenalty() float64 {
	if c.FailurePenalty == nil {
		return DefaultFailurePenalty
	}
	return *c.FailurePenalty
}

// GetCollectionTimeout returns the collection deadline; zero means none.
func (c *EngineConfig) GetCollectionTimeout() time.Duration {
	if c.CollectionTimeout == nil || *c.CollectionTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.CollectionTimeout)
	if err != nil {
		return 0
	}
	return d
}

// GetCrossCheckTolerance returns the allowed forward/backward difference in
// log10 units.
func (c *EngineConfig) GetCrossCheckTolerance() float64 {
	if c.CrossCheckTolerance == nil {
		return DefaultCrossCheckTolerance
	}
	return *c.CrossCheckTolerance
}

// GetStorePath returns the result store path or the default.
func (c *EngineConfig) GetStorePath() string {
	if c.StorePath == nil || *c.StorePath == "" {
		return DefaultStorePath
	}
	return *c.StorePath
}
