package cliutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/blinkfit/internal/config"
	"github.com/banshee-data/blinkfit/internal/db"
	"github.com/banshee-data/blinkfit/internal/expm"
	"github.com/banshee-data/blinkfit/internal/fsutil"
	"github.com/banshee-data/blinkfit/internal/likelihood"
	"github.com/banshee-data/blinkfit/internal/recursion"
	"github.com/banshee-data/blinkfit/internal/testutil"
	"github.com/banshee-data/blinkfit/internal/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFloats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    []float64
		wantErr bool
	}{
		{"", nil, false},
		{"  ", nil, false},
		{"-1,-2, -3 ,2", []float64{-1, -2, -3, 2}, false},
		{"1e-3", []float64{0.001}, false},
		{"1,,2", nil, true},
		{"1,x", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFloats(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOverrides_Apply(t *testing.T) {
	t.Parallel()

	cfg := config.EmptyEngineConfig()
	Overrides{Strategy: "pade", Workers: 2}.Apply(cfg)
	assert.Nil(t, cfg.Model)
	assert.Equal(t, "pade", cfg.GetStrategy())
	assert.Equal(t, 2, cfg.GetWorkers())
	assert.Equal(t, config.DefaultDirection, cfg.GetDirection())

	Overrides{Model: "double-dark", Direction: "backward", Policy: "exclude"}.Apply(cfg)
	assert.Equal(t, "double-dark", cfg.GetModel())
	assert.Equal(t, "backward", cfg.GetDirection())
	assert.Equal(t, "exclude", cfg.GetFailurePolicy())
	assert.Equal(t, "pade", cfg.GetStrategy())
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(config.EmptyEngineConfig(), Overrides{Direction: "backward", Strategy: "krylov"})
	require.NoError(t, err)
	assert.Equal(t, likelihood.SingleDark, e.Variant().Name)
	assert.Equal(t, recursion.Backward, e.Options().Direction)
	assert.Equal(t, expm.KindKrylov, e.Options().Strategy)

	_, err = NewEngine(config.EmptyEngineConfig(), Overrides{Model: "triple-dark"})
	assert.Error(t, err)
	_, err = NewEngine(config.EmptyEngineConfig(), Overrides{Strategy: "taylor"})
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultModel, cfg.GetModel())

	path := filepath.Join(t.TempDir(), "engine.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model": "double-dark", "workers": 1}`), 0o644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "double-dark", cfg.GetModel())
	assert.Equal(t, 1, cfg.GetWorkers())
}

func TestLoadTrajectories(t *testing.T) {
	t.Parallel()

	m := fsutil.NewMemoryFileSystem()
	testutil.WriteTrajectory(t, m, "/data/a.csv", "dark,0.5", "bright,1")
	testutil.WriteTrajectory(t, m, "/data/b.csv", "bright,2")
	require.NoError(t, m.WriteFile("/data/list.txt", []byte("a.csv\nb.csv\n"), 0o644))

	one, err := LoadTrajectories(m, "/data/a.csv", "")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "/data/a.csv", one[0].Name)

	many, err := LoadTrajectories(m, "", "/data/list.txt")
	require.NoError(t, err)
	assert.Len(t, many, 2)

	_, err = LoadTrajectories(m, "", "")
	assert.Error(t, err)
	_, err = LoadTrajectories(m, "/data/a.csv", "/data/list.txt")
	assert.Error(t, err)

	require.NoError(t, m.WriteFile("/data/bad.csv", []byte("nope\n"), 0o644))
	_, err = LoadTrajectories(m, "/data/bad.csv", "")
	assert.ErrorIs(t, err, trajectory.ErrMalformed)
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	store, err := OpenStore("")
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = OpenStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()
	v, dirty, err := store.MigrateVersion(db.MigrationsFS())
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.NotZero(t, v)
}
