// Package testutil provides shared test helpers and trajectory fixtures.
package testutil

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/banshee-data/blinkfit/internal/fsutil"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertErrorIs fails the test unless errors.Is(err, target).
func AssertErrorIs(t testing.TB, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}

// AssertClose fails the test unless got is within tol of want, measured
// relative to |want| when that exceeds one.
func AssertClose(t testing.TB, got, want, tol float64, what string) {
	t.Helper()
	scale := math.Max(1, math.Abs(want))
	if math.IsNaN(got) || math.Abs(got-want) > tol*scale {
		t.Errorf("%s = %.12g, want %.12g (tol %g)", what, got, want, tol)
	}
}

// TrajectoryCSV renders rows of "class,seconds" under the trajectory
// header.
func TrajectoryCSV(rows ...string) string {
	var b strings.Builder
	b.WriteString("class,dwell time\n")
	for _, r := range rows {
		b.WriteString(r)
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteTrajectory stores a trajectory fixture in fsys.
func WriteTrajectory(t testing.TB, fsys fsutil.FileSystem, path string, rows ...string) {
	t.Helper()
	AssertNoError(t, fsys.WriteFile(path, []byte(TrajectoryCSV(rows...)), 0o644))
}
