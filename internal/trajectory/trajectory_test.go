package trajectory

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/banshee-data/blinkfit/internal/fsutil"
	"github.com/banshee-data/blinkfit/internal/statespace"
	"github.com/banshee-data/blinkfit/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dark   = statespace.Dark
	bright = statespace.Bright
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		segs    []Segment
		wantErr bool
	}{
		{"empty", nil, false},
		{"single", []Segment{{bright, 1}}, false},
		{"alternating", []Segment{{dark, 0.35}, {bright, 0.097}, {dark, 0}}, false},
		{"repeated_class", []Segment{{dark, 1}, {dark, 2}}, true},
		{"negative", []Segment{{dark, -0.1}}, true},
		{"nan", []Segment{{bright, math.NaN()}}, true},
		{"inf", []Segment{{bright, math.Inf(1)}}, true},
		{"bad_class", []Segment{{statespace.Class(7), 1}}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.name, tc.segs)
			if tc.wantErr {
				assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTrajectory_StartTimes(t *testing.T) {
	t.Parallel()

	tr, err := New("t", []Segment{{dark, 0.35}, {bright, 0.097}, {dark, 0.297}, {bright, 0.125}})
	require.NoError(t, err)

	starts := tr.StartTimes()
	want := []float64{0, 0.35, 0.447, 0.744}
	assert.InDeltaSlice(t, want, starts, 1e-12)
	assert.InDelta(t, 0.869, tr.Duration(), 1e-12)
	assert.Equal(t, [statespace.NumClasses]int{2, 2}, tr.Counts())
	assert.Equal(t, 4, tr.Len())
}

func TestReadCSV(t *testing.T) {
	t.Parallel()

	in := "class, dwell time\ndark,0.35\n Bright ,0.097\ndark,0.297\n"
	tr, err := ReadCSV(strings.NewReader(in), "sample")
	require.NoError(t, err)

	want := []Segment{{dark, 0.35}, {bright, 0.097}, {dark, 0.297}}
	if diff := cmp.Diff(want, tr.Segments); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "sample", tr.Name)
}

func TestReadCSV_Malformed(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"wrong_header", "state,duration\ndark,1\n"},
		{"too_many_fields", "class,dwell time\ndark,1,2\n"},
		{"unknown_class", "class,dwell time\ngrey,1\n"},
		{"bad_duration", "class,dwell time\ndark,abc\n"},
		{"negative_duration", "class,dwell time\ndark,-1\n"},
		{"not_alternating", "class,dwell time\ndark,1\ndark,2\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.in), tc.name)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestWriteCSV_ReadBack(t *testing.T) {
	t.Parallel()

	tr, err := New("w", []Segment{{bright, 1.25}, {dark, 1e-3}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tr))
	assert.Equal(t, "class,dwell time\nbright,1.25\ndark,0.001\n", buf.String())

	back, err := ReadCSV(&buf, "w")
	require.NoError(t, err)
	assert.Equal(t, tr.Segments, back.Segments)
}

func TestLoadCollection(t *testing.T) {
	t.Parallel()

	m := fsutil.NewMemoryFileSystem()
	testutil.WriteTrajectory(t, m, "/data/a.csv", "dark,0.5", "bright,1")
	testutil.WriteTrajectory(t, m, "/data/sub/b.csv", "bright,2")
	testutil.WriteTrajectory(t, m, "/abs/c.csv", "dark,3", "bright,0.1")
	require.NoError(t, m.WriteFile("/data/collection.txt", []byte("# run 7\na.csv\n\nsub/b.csv\n/abs/c.csv\n"), 0o644))

	paths, err := CollectionPaths(m, "/data/collection.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/a.csv", "/data/sub/b.csv", "/abs/c.csv"}, paths)

	trajs, err := LoadCollection(m, "/data/collection.txt")
	require.NoError(t, err)
	require.Len(t, trajs, 3)
	assert.Equal(t, "/data/sub/b.csv", trajs[1].Name)
	assert.Equal(t, []Segment{{bright, 2}}, trajs[1].Segments)
}

func TestLoadCollection_Errors(t *testing.T) {
	t.Parallel()

	m := fsutil.NewMemoryFileSystem()
	require.NoError(t, m.WriteFile("/c/empty.txt", []byte("# nothing\n\n"), 0o644))
	require.NoError(t, m.WriteFile("/c/missing.txt", []byte("gone.csv\n"), 0o644))
	require.NoError(t, m.WriteFile("/c/bad.txt", []byte("bad.csv\n"), 0o644))
	require.NoError(t, m.WriteFile("/c/bad.csv", []byte(testutil.TrajectoryCSV("dark,1", "dark,1")), 0o644))

	_, err := LoadCollection(m, "/c/empty.txt")
	testutil.AssertErrorIs(t, err, ErrMalformed)

	_, err = LoadCollection(m, "/c/missing.txt")
	testutil.AssertError(t, err)

	_, err = LoadCollection(m, "/c/bad.txt")
	testutil.AssertErrorIs(t, err, ErrMalformed)

	_, err = Load(m, "/c")
	testutil.AssertErrorIs(t, err, ErrMalformed)
}
