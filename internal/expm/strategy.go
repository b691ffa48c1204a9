package expm

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/blinkfit/internal/ratematrix"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNumerical is the root of every numerical failure.
	ErrNumerical = errors.New("expm: numerical failure")

	// ErrNonFinite is returned when a result contains NaN or Inf.
	ErrNonFinite = fmt.Errorf("%w: non-finite result", ErrNumerical)

	// ErrDecomposition is returned when the eigensolver does not converge.
	ErrDecomposition = fmt.Errorf("%w: eigendecomposition failed", ErrNumerical)

	// ErrSingularEigenvectors is returned when the eigenvector matrix is
	// singular or too ill-conditioned to invert.
	ErrSingularEigenvectors = fmt.Errorf("%w: singular eigenvector matrix", ErrNumerical)

	// ErrToleranceExhausted is returned when the Krylov step control cannot
	// meet the requested tolerance within its retry budget.
	ErrToleranceExhausted = fmt.Errorf("%w: krylov tolerance not reached", ErrNumerical)

	// ErrCoupledBlock is returned when the diagonal strategy is handed a
	// block with off-diagonal entries. This is a model declaration error,
	// not a numerical one.
	ErrCoupledBlock = errors.New("expm: diagonal strategy applied to a coupled block")

	// ErrShape is returned for non-square blocks or mismatched vectors.
	ErrShape = errors.New("expm: shape mismatch")
)

// Kind names a strategy implementation.
type Kind string

const (
	KindEigen    Kind = "eigen"
	KindDiagonal Kind = "diagonal"
	KindKrylov   Kind = "krylov"
	KindPade     Kind = "pade"
)

// Kinds lists the selectable strategies.
var Kinds = []Kind{KindEigen, KindDiagonal, KindKrylov, KindPade}

// Strategy computes exponentials of square generator blocks.
type Strategy interface {
	// Kind identifies the implementation.
	Kind() Kind

	// Exp returns exp(tQ) as a dense matrix.
	Exp(b *ratematrix.Block, t float64) (*mat.Dense, error)

	// ExpVec returns exp(tQ)·v for a column vector v.
	ExpVec(b *ratematrix.Block, t float64, v []float64) ([]float64, error)

	// VecExp returns v·exp(tQ) for a row vector v.
	VecExp(b *ratematrix.Block, t float64, v []float64) ([]float64, error)
}

// Options configures strategy construction.
type Options struct {
	KrylovDimension  int
	KrylovTolerance  float64
	KrylovRejections int
}

// New constructs a fresh strategy of the given kind. Each model should own
// its own instances.
func New(kind Kind, opts Options) (Strategy, error) {
	switch kind {
	case KindEigen:
		return NewEigen(), nil
	case KindDiagonal:
		return NewDiagonal(), nil
	case KindKrylov:
		return NewKrylov(opts.KrylovDimension, opts.KrylovTolerance, opts.KrylovRejections), nil
	case KindPade:
		return Pade{}, nil
	default:
		return nil, fmt.Errorf("expm: unknown strategy %q", kind)
	}
}

func squareDims(b *ratematrix.Block) (int, error) {
	r, c := b.Dims()
	if r != c {
		return 0, fmt.Errorf("%w: %s is %dx%d", ErrShape, b.Key(), r, c)
	}
	return r, nil
}

func checkVec(b *ratematrix.Block, v []float64) (int, error) {
	n, err := squareDims(b)
	if err != nil {
		return 0, err
	}
	if len(v) != n {
		return 0, fmt.Errorf("%w: %s needs length %d vector, got %d", ErrShape, b.Key(), n, len(v))
	}
	return n, nil
}

func finiteSlice(kind Kind, b *ratematrix.Block, t float64, xs []float64) error {
	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s on %s at t=%g, component %d is %g", ErrNonFinite, kind, b.Key(), t, i, x)
		}
	}
	return nil
}

func finiteDense(kind Kind, b *ratematrix.Block, t float64, m *mat.Dense) error {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		if err := finiteSlice(kind, b, t, m.RawRowView(i)); err != nil {
			return err
		}
	}
	return nil
}

// cached holds one derived value per block key. An entry from an older
// generation is replaced rather than kept, so time-varying models do not
// accumulate stale decompositions.
type cached[T any] struct {
	generation uint64
	value      T
}

type blockCache[T any] map[ratematrix.BlockKey]cached[T]

func (c blockCache[T]) get(b *ratematrix.Block) (T, bool) {
	e, ok := c[b.Key()]
	if !ok || e.generation != b.Generation() {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c blockCache[T]) put(b *ratematrix.Block, v T) {
	c[b.Key()] = cached[T]{generation: b.Generation(), value: v}
}
