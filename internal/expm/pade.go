package expm

import (
	"github.com/banshee-data/blinkfit/internal/ratematrix"
	"gonum.org/v1/gonum/mat"
)

// Pade uses gonum's scaling-and-squaring Padé approximant. It keeps nothing
// between calls and is the reference the other strategies are checked
// against.
type Pade struct{}

// Kind implements Strategy.
func (Pade) Kind() Kind { return KindPade }

// Exp implements Strategy.
func (Pade) Exp(b *ratematrix.Block, t float64) (*mat.Dense, error) {
	if _, err := squareDims(b); err != nil {
		return nil, err
	}
	var scaled, out mat.Dense
	scaled.Scale(t, b.Dense())
	out.Exp(&scaled)
	if err := finiteDense(KindPade, b, t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExpVec implements Strategy.
func (p Pade) ExpVec(b *ratematrix.Block, t float64, v []float64) ([]float64, error) {
	n, err := checkVec(b, v)
	if err != nil {
		return nil, err
	}
	e, err := p.Exp(b, t)
	if err != nil {
		return nil, err
	}
	w := mat.NewVecDense(n, nil)
	w.MulVec(e, mat.NewVecDense(n, append([]float64(nil), v...)))
	return w.RawVector().Data, nil
}

// VecExp implements Strategy.
func (p Pade) VecExp(b *ratematrix.Block, t float64, v []float64) ([]float64, error) {
	n, err := checkVec(b, v)
	if err != nil {
		return nil, err
	}
	e, err := p.Exp(b, t)
	if err != nil {
		return nil, err
	}
	w := mat.NewVecDense(n, nil)
	w.MulVec(e.T(), mat.NewVecDense(n, append([]float64(nil), v...)))
	return w.RawVector().Data, nil
}
