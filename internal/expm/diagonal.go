package expm

import (
	"fmt"
	"math"

	"github.com/banshee-data/blinkfit/internal/ratematrix"
	"gonum.org/v1/gonum/mat"
)

// Diagonal exponentiates blocks with no off-diagonal coupling, where
// exp(tQ) = diag(exp(q_ii·t)). A coupled block is rejected with
// ErrCoupledBlock rather than silently truncated.
type Diagonal struct {
	diag blockCache[[]float64]
}

// NewDiagonal returns a diagonal strategy.
func NewDiagonal() *Diagonal {
	return &Diagonal{diag: make(blockCache[[]float64])}
}

// Kind implements Strategy.
func (d *Diagonal) Kind() Kind { return KindDiagonal }

// Invalidate drops the cached diagonals.
func (d *Diagonal) Invalidate() {
	d.diag = make(blockCache[[]float64])
}

func (d *Diagonal) diagonal(b *ratematrix.Block) ([]float64, error) {
	if q, ok := d.diag.get(b); ok {
		return q, nil
	}
	if _, err := squareDims(b); err != nil {
		return nil, err
	}
	if !b.Uncoupled() {
		return nil, fmt.Errorf("%w: %s generation %d", ErrCoupledBlock, b.Key(), b.Generation())
	}
	q := b.Diagonal()
	d.diag.put(b, q)
	return q, nil
}

// Exp implements Strategy.
func (d *Diagonal) Exp(b *ratematrix.Block, t float64) (*mat.Dense, error) {
	q, err := d.diagonal(b)
	if err != nil {
		return nil, err
	}
	e := make([]float64, len(q))
	for i, qi := range q {
		e[i] = math.Exp(qi * t)
	}
	if err := finiteSlice(KindDiagonal, b, t, e); err != nil {
		return nil, err
	}
	out := mat.NewDense(len(q), len(q), nil)
	for i, ei := range e {
		out.Set(i, i, ei)
	}
	return out, nil
}

// ExpVec implements Strategy.
func (d *Diagonal) ExpVec(b *ratematrix.Block, t float64, v []float64) ([]float64, error) {
	if _, err := checkVec(b, v); err != nil {
		return nil, err
	}
	q, err := d.diagonal(b)
	if err != nil {
		return nil, err
	}
	w := make([]float64, len(q))
	for i, qi := range q {
		w[i] = math.Exp(qi*t) * v[i]
	}
	if err := finiteSlice(KindDiagonal, b, t, w); err != nil {
		return nil, err
	}
	return w, nil
}

// VecExp implements Strategy. A diagonal exponential is symmetric.
func (d *Diagonal) VecExp(b *ratematrix.Block, t float64, v []float64) ([]float64, error) {
	return d.ExpVec(b, t, v)
}
