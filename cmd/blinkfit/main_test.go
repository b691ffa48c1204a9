package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/blinkfit/internal/fsutil"
	"github.com/banshee-data/blinkfit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const params = "-0.5,-0.5,-0.5,-1,1"

func fixtures(t *testing.T) *fsutil.MemoryFileSystem {
	t.Helper()
	m := fsutil.NewMemoryFileSystem()
	testutil.WriteTrajectory(t, m, "/data/a.csv", "dark,1", "bright,0.5", "dark,2", "bright,0.25")
	testutil.WriteTrajectory(t, m, "/data/b.csv", "dark,0.3", "bright,1.5")
	require.NoError(t, m.WriteFile("/data/list.txt", []byte("a.csv\nb.csv\n"), 0o644))
	return m
}

func runCLI(t *testing.T, fsys fsutil.FileSystem, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr, fsys)
	return stdout.String(), err
}

func TestRun_Commands(t *testing.T) {
	m := fixtures(t)

	out, err := runCLI(t, m, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "blinkfit "))

	_, err = runCLI(t, m)
	assert.Error(t, err)
	_, err = runCLI(t, m, "simulate")
	assert.ErrorContains(t, err, "unknown command")
}

func TestEvaluate(t *testing.T) {
	m := fixtures(t)

	out, err := runCLI(t, m, "evaluate", "-trajectory", "/data/a.csv", "-params", params)
	require.NoError(t, err)
	assert.Contains(t, out, "/data/a.csv")
	assert.Contains(t, out, "mean log10 L")
	assert.Contains(t, out, "over 1 trajectories")

	out, err = runCLI(t, m, "evaluate", "-collection", "/data/list.txt", "-params", params, "-strategy", "pade", "-workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "/data/b.csv")
	assert.Contains(t, out, "over 2 trajectories")
}

func TestEvaluate_Errors(t *testing.T) {
	m := fixtures(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing params", []string{"-trajectory", "/data/a.csv"}},
		{"short params", []string{"-trajectory", "/data/a.csv", "-params", "-1,-1"}},
		{"fractional N", []string{"-trajectory", "/data/a.csv", "-params", "-1,-1,-1,-1,1.5"}},
		{"no input", []string{"-params", params}},
		{"missing file", []string{"-trajectory", "/data/missing.csv", "-params", params}},
		{"bad model", []string{"-trajectory", "/data/a.csv", "-params", params, "-model", "triple-dark"}},
		{"bad flag", []string{"-frobnicate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, m, append([]string{"evaluate"}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestCrossCheck(t *testing.T) {
	m := fixtures(t)

	out, err := runCLI(t, m, "crosscheck", "-collection", "/data/list.txt", "-params", params)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, " ok\n"))
}

func TestFit(t *testing.T) {
	m := fixtures(t)

	out, err := runCLI(t, m, "fit", "-collection", "/data/list.txt", "-params", params, "-max-evals", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "fitted single-dark{")
	assert.Contains(t, out, "evaluations")
}

func TestRecordAndListRuns(t *testing.T) {
	m := fixtures(t)
	store := filepath.Join(t.TempDir(), "runs.db")

	out, err := runCLI(t, m, "evaluate", "-collection", "/data/list.txt", "-params", params, "-record", "-store", store)
	require.NoError(t, err)
	require.Contains(t, out, "recorded run ")
	id := strings.TrimSpace(out[strings.LastIndex(out, "recorded run ")+len("recorded run "):])

	_, err = runCLI(t, m, "crosscheck", "-trajectory", "/data/b.csv", "-params", params, "-record", "-store", store)
	require.NoError(t, err)

	out, err = runCLI(t, m, "runs", "-store", store)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Contains(t, out, id+" evaluate single-dark")
	assert.Contains(t, out, "crosscheck")

	out, err = runCLI(t, m, "runs", "-store", store, "-show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "/data/a.csv")
	assert.Contains(t, out, "/data/b.csv")

	out, err = runCLI(t, m, "runs", "-store", store, "-delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted run "+id)

	_, err = runCLI(t, m, "runs", "-store", store, "-show", id)
	assert.Error(t, err)
}
