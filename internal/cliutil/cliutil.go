// Package cliutil holds the flag plumbing shared by the command-line tools.
package cliutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/blinkfit/internal/config"
	"github.com/banshee-data/blinkfit/internal/db"
	"github.com/banshee-data/blinkfit/internal/fsutil"
	"github.com/banshee-data/blinkfit/internal/likelihood"
	"github.com/banshee-data/blinkfit/internal/trajectory"
)

// ParseFloats parses a comma-separated list of floats.
func ParseFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Overrides are command-line values that take precedence over the config
// file. Empty strings leave the configured value alone.
type Overrides struct {
	Model     string
	Direction string
	Strategy  string
	Policy    string
	Workers   int
}

// Apply copies the set overrides into cfg.
func (o Overrides) Apply(cfg *config.EngineConfig) {
	set := func(dst **string, v string) {
		if v != "" {
			v := v
			*dst = &v
		}
	}
	set(&cfg.Model, o.Model)
	set(&cfg.Direction, o.Direction)
	set(&cfg.Strategy, o.Strategy)
	set(&cfg.FailurePolicy, o.Policy)
	if o.Workers > 0 {
		w := o.Workers
		cfg.Workers = &w
	}
}

// LoadConfig reads path, or returns an empty config when path is empty.
func LoadConfig(path string) (*config.EngineConfig, error) {
	if path == "" {
		return config.EmptyEngineConfig(), nil
	}
	return config.LoadEngineConfig(path)
}

// NewEngine builds an engine from cfg after applying o.
func NewEngine(cfg *config.EngineConfig, o Overrides) (*likelihood.Engine, error) {
	o.Apply(cfg)
	v, opts, err := likelihood.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return likelihood.NewEngine(v, opts)
}

// LoadTrajectories loads a single trajectory file or a collection file.
// Exactly one of the two paths must be set.
func LoadTrajectories(fsys fsutil.FileSystem, trajectoryPath, collectionPath string) ([]*trajectory.Trajectory, error) {
	switch {
	case trajectoryPath != "" && collectionPath != "":
		return nil, fmt.Errorf("use either -trajectory or -collection, not both")
	case trajectoryPath != "":
		tr, err := trajectory.Load(fsys, trajectoryPath)
		if err != nil {
			return nil, err
		}
		return []*trajectory.Trajectory{tr}, nil
	case collectionPath != "":
		return trajectory.LoadCollection(fsys, collectionPath)
	default:
		return nil, fmt.Errorf("one of -trajectory or -collection is required")
	}
}

// OpenStore opens and migrates the result store at path. An empty path
// means no store.
func OpenStore(path string) (*db.DB, error) {
	if path == "" {
		return nil, nil
	}
	return db.NewDB(path)
}
