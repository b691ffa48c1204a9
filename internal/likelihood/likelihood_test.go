package likelihood

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/banshee-data/blinkfit/internal/config"
	"github.com/banshee-data/blinkfit/internal/expm"
	"github.com/banshee-data/blinkfit/internal/ratematrix"
	"github.com/banshee-data/blinkfit/internal/recursion"
	"github.com/banshee-data/blinkfit/internal/statespace"
	"github.com/banshee-data/blinkfit/internal/timeutil"
	"github.com/banshee-data/blinkfit/internal/trajectory"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dark   = statespace.Dark
	bright = statespace.Bright
)

// toy is the single-dark parameter vector with every log-rate at -0.5.
var toy = []float64{-0.5, -0.5, -0.5, -0.5, 1}

func seg(c statespace.Class, d float64) trajectory.Segment {
	return trajectory.Segment{Class: c, Duration: d}
}

func mustTrajectory(t *testing.T, name string, segs ...trajectory.Segment) *trajectory.Trajectory {
	t.Helper()
	tr, err := trajectory.New(name, segs)
	require.NoError(t, err)
	return tr
}

func fourBlinks(t *testing.T) *trajectory.Trajectory {
	return mustTrajectory(t, "four-blinks",
		seg(dark, 0.35), seg(bright, 0.097), seg(dark, 0.297), seg(bright, 0.125), seg(dark, 0.00519))
}

// fourBlinksLog10 is the hand-derived likelihood of fourBlinks for one
// emitter with every rate equal to k. The final dark dwell is either a
// blink or bleaching.
func fourBlinksLog10(k float64) float64 {
	l := k * math.Exp(-0.35*k) *
		math.Exp(-2*k*0.097) *
		k * k * math.Exp(-0.297*k) *
		math.Exp(-2*k*0.125) *
		k * (math.Exp(-0.00519*k) + 1)
	return math.Log10(l)
}

func newEngine(t *testing.T, variant string, mutate func(*Options)) *Engine {
	t.Helper()
	v, err := LookupVariant(variant)
	require.NoError(t, err)
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	e, err := NewEngine(v, opts)
	require.NoError(t, err)
	return e
}

func TestLookupVariant(t *testing.T) {
	t.Parallel()

	v, err := LookupVariant(" Single-Dark ")
	require.NoError(t, err)
	assert.Equal(t, SingleDark, v.Name)
	if diff := cmp.Diff([]string{"log_ka", "log_kd", "log_kr", "log_kb", "N"}, v.Schema()); diff != "" {
		t.Errorf("single-dark schema mismatch (-want +got):\n%s", diff)
	}

	v, err = LookupVariant(DoubleDark)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"log_ka", "log_kd1", "log_kr1", "log_kd2", "log_kr2", "log_kb", "N"}, v.Schema()); diff != "" {
		t.Errorf("double-dark schema mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []statespace.Class{dark}, v.Uncoupled)

	_, err = LookupVariant("triple-dark")
	assert.ErrorContains(t, err, "single-dark")
	assert.Equal(t, []string{DoubleDark, SingleDark}, VariantNames())
}

func TestFromVector(t *testing.T) {
	t.Parallel()

	v, err := LookupVariant(SingleDark)
	require.NoError(t, err)

	testCases := []struct {
		name    string
		x       []float64
		wantErr bool
	}{
		{"valid", []float64{-1, 0, 1, -2, 3}, false},
		{"zero emitters", []float64{-1, 0, 1, -2, 0}, false},
		{"too short", []float64{-1, 0, 1, 3}, true},
		{"too long", []float64{-1, 0, 1, -2, 3, 4}, true},
		{"fractional N", []float64{-1, 0, 1, -2, 1.5}, true},
		{"negative N", []float64{-1, 0, 1, -2, -1}, true},
		{"infinite N", []float64{-1, 0, 1, -2, math.Inf(1)}, true},
		{"NaN rate", []float64{math.NaN(), 0, 1, -2, 1}, true},
		{"infinite rate", []float64{-1, math.Inf(-1), 1, -2, 1}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := FromVector(v, tc.x)
			if tc.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidParameters), "got %v", err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tc.x, p.Vector()); diff != "" {
				t.Errorf("Vector() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParameterSet_Accessors(t *testing.T) {
	t.Parallel()

	v, _ := LookupVariant(SingleDark)
	x := []float64{-1, -2, -3, -4, 2}
	p, err := FromVector(v, x)
	require.NoError(t, err)
	x[0] = 99
	assert.Equal(t, -1.0, p.LogRates[0], "FromVector must copy")

	kr, ok := p.LogRate("log_kr")
	assert.True(t, ok)
	assert.Equal(t, -3.0, kr)
	_, ok = p.LogRate("log_kx")
	assert.False(t, ok)

	q, err := p.WithLogRates([]float64{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 2, q.N)
	assert.Equal(t, -1.0, p.LogRates[0])
	assert.Equal(t, "single-dark{log_ka=-1 log_kd=-2 log_kr=-3 log_kb=-4 N=2}", p.String())
}

func TestEvaluate_ClosedForm(t *testing.T) {
	t.Parallel()

	want := fourBlinksLog10(math.Pow(10, -0.5))
	testCases := []struct {
		name      string
		strategy  expm.Kind
		direction recursion.Direction
		fastPath  bool
		tol       float64
	}{
		{"eigen_forward", expm.KindEigen, recursion.Forward, true, 1e-9},
		{"eigen_backward", expm.KindEigen, recursion.Backward, true, 1e-9},
		{"pade_no_fast_path", expm.KindPade, recursion.Forward, false, 1e-9},
		{"krylov_backward", expm.KindKrylov, recursion.Backward, true, 1e-6},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := newEngine(t, SingleDark, func(o *Options) {
				o.Strategy = tc.strategy
				o.Direction = tc.direction
				o.DiagonalFastPath = tc.fastPath
			})
			got, err := e.Evaluate(toy, fourBlinks(t))
			require.NoError(t, err)
			assert.InDelta(t, want, got, tc.tol)
		})
	}
}

func TestEvaluate_SeveralEmittersAtToyRates(t *testing.T) {
	t.Parallel()

	// With every rate equal the coupled bright block is defective for N >= 2,
	// so its eigenvector matrix is singular. The default strategy copes.
	for _, n := range []float64{2, 5, 10} {
		x := []float64{-0.5, -0.5, -0.5, -0.5, n}

		eig := newEngine(t, SingleDark, func(o *Options) { o.Strategy = expm.KindEigen })
		_, err := eig.Evaluate(x, fourBlinks(t))
		require.ErrorIs(t, err, expm.ErrSingularEigenvectors, "N=%g", n)
		assert.ErrorIs(t, err, expm.ErrNumerical)

		def := newEngine(t, SingleDark, nil)
		cc, err := def.CrossCheck(x, fourBlinks(t))
		require.NoError(t, err, "N=%g", n)
		assert.True(t, cc.Agree)
		assert.InDelta(t, cc.Forward.LogLikelihood, cc.Backward.LogLikelihood, 1e-9)
		assert.False(t, cc.Forward.Floored)

		kry := newEngine(t, SingleDark, func(o *Options) {
			o.Strategy = expm.KindKrylov
			o.Expm.KrylovTolerance = 1e-10
		})
		got, err := kry.Evaluate(x, fourBlinks(t))
		require.NoError(t, err, "N=%g", n)
		assert.InDelta(t, cc.Forward.LogLikelihood, got, 1e-6, "N=%g", n)

		switch n {
		case 2:
			assert.InDelta(t, -1.169206, cc.Forward.LogLikelihood, 1e-5)
		case 10:
			assert.InDelta(t, -0.603343, cc.Forward.LogLikelihood, 1e-5)
		}
	}
}

func TestEvaluate_TerminalDarkDwell(t *testing.T) {
	t.Parallel()

	// One emitter observed dark for a second and never seen again: the
	// likelihood is the survival of the inactive state, exp(-ka).
	ka := math.Pow(10, -0.5)
	e := newEngine(t, SingleDark, nil)
	got, err := e.Evaluate(toy, mustTrajectory(t, "dark", seg(dark, 1.0)))
	require.NoError(t, err)
	assert.InDelta(t, -ka/math.Ln10, got, 1e-12)
}

func TestEvaluate_Boundaries(t *testing.T) {
	t.Parallel()

	e := newEngine(t, SingleDark, nil)

	got, err := e.Evaluate(toy, &trajectory.Trajectory{Name: "empty"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	// No emitters: a dark dwell is certain, a bright one impossible.
	none := []float64{-0.5, -0.5, -0.5, -0.5, 0}
	got, err = e.Evaluate(none, mustTrajectory(t, "dark", seg(dark, 3)))
	require.NoError(t, err)
	assert.InDelta(t, 0, got, 1e-15)

	res, err := e.EvaluateResult(none, mustTrajectory(t, "blink", seg(dark, 1), seg(bright, 1)))
	require.NoError(t, err)
	assert.Equal(t, math.Log10(recursion.AlmostZero), res.LogLikelihood)
	assert.True(t, res.Floored)
}

func TestEvaluate_Errors(t *testing.T) {
	t.Parallel()

	e := newEngine(t, SingleDark, nil)

	_, err := e.Evaluate([]float64{0, 0, 0, 0, 0.5}, fourBlinks(t))
	assert.True(t, errors.Is(err, ErrInvalidParameters), "got %v", err)

	malformed := &trajectory.Trajectory{Name: "bad", Segments: []trajectory.Segment{seg(dark, 1), seg(dark, 1)}}
	got, err := e.Evaluate(toy, malformed)
	assert.True(t, errors.Is(err, trajectory.ErrMalformed), "got %v", err)
	assert.True(t, math.IsNaN(got))

	_, err = e.Evaluate(toy, nil)
	assert.True(t, errors.Is(err, trajectory.ErrMalformed), "got %v", err)

	_, err = e.Evaluate([]float64{400, 0, 0, 0, 1}, fourBlinks(t))
	assert.True(t, errors.Is(err, ratematrix.ErrInvalidRate), "got %v", err)
}

func TestEvaluate_NumericalFailureIsReported(t *testing.T) {
	t.Parallel()

	e := newEngine(t, SingleDark, func(o *Options) {
		o.Strategy = expm.KindKrylov
		o.DiagonalFastPath = false
		o.Expm = expm.Options{KrylovDimension: 2, KrylovTolerance: 1e-300, KrylovRejections: 1}
	})
	tr := mustTrajectory(t, "pair", seg(dark, 1), seg(bright, 1))
	got, err := e.Evaluate([]float64{0, 0, 0, 0, 2}, tr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, expm.ErrNumerical), "got %v", err)
	assert.ErrorContains(t, err, "pair")
	assert.True(t, math.IsNaN(got), "a failure must not look like a likelihood")
}

func TestDoubleDarkReducesToSingleDark(t *testing.T) {
	t.Parallel()

	// A second dark state that is practically never entered leaves the
	// single-dark likelihood unchanged.
	single := newEngine(t, SingleDark, func(o *Options) { o.Strategy = expm.KindPade })
	double := newEngine(t, DoubleDark, func(o *Options) { o.Strategy = expm.KindPade })
	tr := fourBlinks(t)
	for _, n := range []float64{1, 2} {
		want, err := single.Evaluate([]float64{-0.3, -0.6, -0.4, -0.8, n}, tr)
		require.NoError(t, err)
		got, err := double.Evaluate([]float64{-0.3, -0.6, -0.4, -12, 0, -0.8, n}, tr)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-6, "N=%g", n)
	}
}

func TestCrossCheck(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		variant string
		x       []float64
		mutate  func(*Options)
	}{
		{"single_dark_N2", SingleDark, []float64{-0.3, -0.6, -0.4, -0.8, 2}, nil},
		{"double_dark_N1", DoubleDark, []float64{-0.3, -0.6, -0.4, -1, -0.2, -0.8, 1}, nil},
		{"sigmoid_activation", SingleDark, []float64{0, -0.6, -0.4, -0.8, 2}, func(o *Options) {
			o.Strategy = expm.KindPade
			o.Activation = Activation{Profile: ProfileSigmoid, Midpoint: 0.4, Steepness: 5}
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := newEngine(t, tc.variant, tc.mutate)
			res, err := e.CrossCheck(tc.x, fourBlinks(t))
			require.NoError(t, err)
			assert.True(t, res.Agree, "difference %g", res.Difference)
			assert.InDelta(t, res.Forward.LogLikelihood, res.Backward.LogLikelihood, 1e-8)
			assert.Equal(t, config.DefaultCrossCheckTolerance, res.Tolerance)
			assert.Equal(t, recursion.Forward, res.Forward.Direction)
			assert.Equal(t, recursion.Backward, res.Backward.Direction)
		})
	}
}

func TestModel_SigmoidIsTimeVarying(t *testing.T) {
	t.Parallel()

	e := newEngine(t, SingleDark, func(o *Options) {
		o.Activation = Activation{Profile: ProfileSigmoid, Midpoint: 1, Steepness: 2}
	})
	m, err := e.NewModel(toy)
	require.NoError(t, err)
	assert.True(t, m.Builder().TimeVarying())
	assert.Equal(t, 1, m.Params().N)
	assert.Equal(t, expm.KindDiagonal, m.Strategy(dark).Kind())
	assert.Equal(t, expm.KindPade, m.Strategy(bright).Kind())

	e = newEngine(t, SingleDark, nil)
	m, err = e.NewModel(toy)
	require.NoError(t, err)
	assert.False(t, m.Builder().TimeVarying())
}

func TestNewEngine_Validation(t *testing.T) {
	t.Parallel()

	v, _ := LookupVariant(SingleDark)
	_, err := NewEngine(nil, DefaultOptions())
	assert.Error(t, err)

	opts := DefaultOptions()
	opts.Strategy = "taylor"
	_, err = NewEngine(v, opts)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.Strategy = expm.KindDiagonal
	_, err = NewEngine(v, opts)
	assert.ErrorIs(t, err, expm.ErrCoupledBlock, "diagonal only serves uncoupled classes")

	opts = DefaultOptions()
	opts.Activation = Activation{Profile: ProfileSigmoid}
	_, err = NewEngine(v, opts)
	assert.Error(t, err, "sigmoid needs a positive steepness")

	e, err := NewEngine(v, Options{Strategy: expm.KindPade})
	require.NoError(t, err)
	got := e.Options()
	assert.Equal(t, config.DefaultWorkers, got.Workers)
	assert.Equal(t, PolicyStrict, got.Judge.Policy())
	assert.NotNil(t, got.Clock)
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	v, opts, err := OptionsFromConfig(config.MustLoadDefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, SingleDark, v.Name)
	assert.Equal(t, recursion.Forward, opts.Direction)
	assert.Equal(t, expm.KindPade, opts.Strategy)
	assert.True(t, opts.DiagonalFastPath)
	assert.Equal(t, PolicyStrict, opts.Judge.Policy())
	assert.Equal(t, config.DefaultCrossCheckTolerance, opts.CrossCheckTolerance)

	model, policy, dir := "double-dark", "penalty", "backward"
	penalty := -123.0
	cfg := &config.EngineConfig{Model: &model, FailurePolicy: &policy, FailurePenalty: &penalty, Direction: &dir}
	v, opts, err = OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, DoubleDark, v.Name)
	assert.Equal(t, recursion.Backward, opts.Direction)
	assert.Equal(t, Penalty{Value: -123}, opts.Judge)

	bogus := "bogus"
	_, _, err = OptionsFromConfig(&config.EngineConfig{Strategy: &bogus})
	assert.Error(t, err)
	_, _, err = OptionsFromConfig(&config.EngineConfig{Model: &bogus})
	assert.Error(t, err)
}

func TestJudges(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ok := Outcome{Index: 0, Name: "ok", LogLikelihood: -4}
	failed := Outcome{Index: 1, Name: "failed", Err: boom}

	testCases := []struct {
		policy      string
		wantScore   float64
		wantInclude bool
		wantErr     bool
	}{
		{PolicyStrict, 0, false, true},
		{PolicyExclude, 0, false, false},
		{PolicyPenalty, -300, true, false},
	}
	for _, tc := range testCases {
		t.Run(tc.policy, func(t *testing.T) {
			j, err := NewJudge(tc.policy, -300)
			require.NoError(t, err)
			assert.Equal(t, tc.policy, j.Policy())

			score, include, err := j.Score(ok)
			require.NoError(t, err)
			assert.Equal(t, -4.0, score)
			assert.True(t, include)

			score, include, err = j.Score(failed)
			if tc.wantErr {
				assert.True(t, errors.Is(err, boom))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantScore, score)
			assert.Equal(t, tc.wantInclude, include)
		})
	}

	_, err := NewJudge("lenient", 0)
	assert.Error(t, err)
	_, err = NewJudge(PolicyPenalty, math.Inf(-1))
	assert.Error(t, err)
}

func collection(t *testing.T) []*trajectory.Trajectory {
	return []*trajectory.Trajectory{
		fourBlinks(t),
		mustTrajectory(t, "dark", seg(dark, 1.0)),
		mustTrajectory(t, "short", seg(dark, 0.2), seg(bright, 0.4), seg(dark, 0.1)),
	}
}

func TestEvaluateCollection_MeanOfIndependentEvaluations(t *testing.T) {
	t.Parallel()

	trs := collection(t)
	for _, workers := range []int{1, 4} {
		e := newEngine(t, SingleDark, func(o *Options) { o.Workers = workers })
		var sum float64
		for _, tr := range trs {
			v, err := e.Evaluate(toy, tr)
			require.NoError(t, err)
			sum += v
		}
		res, err := e.EvaluateCollection(context.Background(), toy, trs)
		require.NoError(t, err)
		assert.InDelta(t, sum/3, res.Mean, 1e-12, "workers=%d", workers)
		assert.Equal(t, 3, res.Included)
		assert.Equal(t, 0, res.Failed)
		for i, o := range res.Outcomes {
			assert.Equal(t, i, o.Index)
			assert.Equal(t, trs[i].Name, o.Name)
			assert.True(t, o.Included)
		}
	}
}

func TestEvaluateCollection_Policies(t *testing.T) {
	t.Parallel()

	trs := collection(t)
	bad := &trajectory.Trajectory{Name: "bad", Segments: []trajectory.Segment{seg(bright, -1)}}
	withBad := append(append([]*trajectory.Trajectory(nil), trs...), bad)

	base := newEngine(t, SingleDark, nil)
	clean, err := base.EvaluateCollection(context.Background(), toy, trs)
	require.NoError(t, err)

	t.Run("strict", func(t *testing.T) {
		_, err := base.EvaluateCollection(context.Background(), toy, withBad)
		assert.True(t, errors.Is(err, trajectory.ErrMalformed), "got %v", err)
		assert.ErrorContains(t, err, "bad")
	})
	t.Run("exclude", func(t *testing.T) {
		e := newEngine(t, SingleDark, func(o *Options) { o.Judge = Exclude{} })
		res, err := e.EvaluateCollection(context.Background(), toy, withBad)
		require.NoError(t, err)
		assert.InDelta(t, clean.Mean, res.Mean, 1e-12)
		assert.Equal(t, 3, res.Included)
		assert.Equal(t, 1, res.Failed)
		assert.Equal(t, PolicyExclude, res.Policy)
		assert.Error(t, res.Outcomes[3].Err)
	})
	t.Run("penalty", func(t *testing.T) {
		e := newEngine(t, SingleDark, func(o *Options) { o.Judge = Penalty{Value: -300} })
		res, err := e.EvaluateCollection(context.Background(), toy, withBad)
		require.NoError(t, err)
		assert.InDelta(t, (3*clean.Mean-300)/4, res.Mean, 1e-9)
		assert.Equal(t, 4, res.Included)
		assert.Equal(t, 1, res.Failed)
	})
	t.Run("all_excluded", func(t *testing.T) {
		e := newEngine(t, SingleDark, func(o *Options) { o.Judge = Exclude{} })
		_, err := e.EvaluateCollection(context.Background(), toy, []*trajectory.Trajectory{bad})
		assert.True(t, errors.Is(err, ErrEmptyCollection), "got %v", err)
	})
}

func TestEvaluateCollection_Errors(t *testing.T) {
	t.Parallel()

	e := newEngine(t, SingleDark, nil)
	_, err := e.EvaluateCollection(context.Background(), toy, nil)
	assert.True(t, errors.Is(err, ErrEmptyCollection), "got %v", err)

	_, err = e.EvaluateCollection(context.Background(), []float64{1}, collection(t))
	assert.True(t, errors.Is(err, ErrInvalidParameters), "got %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.EvaluateCollection(ctx, toy, collection(t))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestEvaluateCollection_ElapsedFromClock(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	clock.AutoStep(250 * time.Millisecond)
	e := newEngine(t, SingleDark, func(o *Options) {
		o.Workers = 1
		o.Clock = clock
	})
	res, err := e.EvaluateCollection(context.Background(), toy, collection(t))
	require.NoError(t, err)
	for _, o := range res.Outcomes {
		assert.Equal(t, 250*time.Millisecond, o.Elapsed)
	}
}

func TestFit_NeverWorseThanStart(t *testing.T) {
	t.Parallel()

	e := newEngine(t, SingleDark, func(o *Options) { o.Workers = 2 })
	start := []float64{-1, -1, -1, -1, 1}
	res, err := e.Fit(context.Background(), start, collection(t), FitSettings{MaxEvaluations: 40})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Mean, res.StartMean)
	assert.Greater(t, res.Evaluations, 1)
	assert.Equal(t, 1, res.Params.N)
	assert.NotEmpty(t, res.Status)

	direct, err := e.EvaluateCollection(context.Background(), res.Params.Vector(), collection(t))
	require.NoError(t, err)
	assert.InDelta(t, res.Mean, direct.Mean, 1e-9)
}

func TestObjective(t *testing.T) {
	t.Parallel()

	e := newEngine(t, SingleDark, nil)
	obj, err := e.NewObjective(context.Background(), toy, collection(t))
	require.NoError(t, err)

	res, err := e.EvaluateCollection(context.Background(), toy, collection(t))
	require.NoError(t, err)
	assert.InDelta(t, -res.Mean, obj.Func([]float64{-0.5, -0.5, -0.5, -0.5}), 1e-12)
	assert.NoError(t, obj.Err())

	assert.Equal(t, FailureObjective, obj.Func([]float64{math.NaN(), 0, 0, 0}))
	assert.True(t, errors.Is(obj.Err(), ErrInvalidParameters))
	assert.Equal(t, 2, obj.Evaluations())

	_, err = e.NewObjective(context.Background(), toy, nil)
	assert.True(t, errors.Is(err, ErrEmptyCollection))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	obj, err = e.NewObjective(ctx, toy, collection(t))
	require.NoError(t, err)
	_, err = obj.Problem().Status()
	assert.True(t, errors.Is(err, context.Canceled))
}
