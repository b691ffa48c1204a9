package expm

import (
	"fmt"
	"math"

	"github.com/banshee-data/blinkfit/internal/monitoring"
	"github.com/banshee-data/blinkfit/internal/ratematrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Krylov step-control defaults.
const (
	DefaultKrylovDimension  = 30
	DefaultKrylovTolerance  = 1e-7
	DefaultKrylovRejections = 10

	krylovGamma = 0.9
	krylovDelta = 1.2
	// krylovBreakdown is the Arnoldi residual below which the subspace is
	// taken to be invariant and the whole remaining interval is covered in
	// one step.
	krylovBreakdown = 1e-7
	// krylovMaxSteps bounds the outer time stepping.
	krylovMaxSteps = 1 << 16
)

// KrylovStats reports what the last ExpVec call did.
type KrylovStats struct {
	Steps      int
	Rejections int
	Breakdown  bool
	// ErrorEstimate is the sum of the local error estimates.
	ErrorEstimate float64
}

// Krylov computes exp(tQ)·v without forming exp(tQ), by projecting onto
// an Arnoldi basis of dimension m and time-stepping with local error
// control. It only touches the block through sparse matrix-vector products.
type Krylov struct {
	dimension  int
	tolerance  float64
	rejections int

	last KrylovStats
}

// NewKrylov returns a Krylov strategy. Non-positive arguments take the
// defaults; the subspace dimension is at least 2.
func NewKrylov(dimension int, tolerance float64, rejections int) *Krylov {
	if dimension <= 0 {
		dimension = DefaultKrylovDimension
	}
	if dimension < 2 {
		dimension = 2
	}
	if tolerance <= 0 {
		tolerance = DefaultKrylovTolerance
	}
	if rejections <= 0 {
		rejections = DefaultKrylovRejections
	}
	return &Krylov{dimension: dimension, tolerance: tolerance, rejections: rejections}
}

// Kind implements Strategy.
func (k *Krylov) Kind() Kind { return KindKrylov }

// Dimension returns the configured subspace dimension.
func (k *Krylov) Dimension() int { return k.dimension }

// Tolerance returns the configured local error tolerance.
func (k *Krylov) Tolerance() float64 { return k.tolerance }

// LastStats returns the statistics of the most recent ExpVec or VecExp.
func (k *Krylov) LastStats() KrylovStats { return k.last }

// ExpVec implements Strategy.
func (k *Krylov) ExpVec(b *ratematrix.Block, t float64, v []float64) ([]float64, error) {
	if _, err := checkVec(b, v); err != nil {
		return nil, err
	}
	w, err := k.expv(b.Sparse(), t, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s at t=%g", err, b.Key(), t)
	}
	if err := finiteSlice(KindKrylov, b, t, w); err != nil {
		return nil, err
	}
	return w, nil
}

// VecExp implements Strategy as exp(tQᵀ)·vᵀ.
func (k *Krylov) VecExp(b *ratematrix.Block, t float64, v []float64) ([]float64, error) {
	return k.ExpVec(b.T(), t, v)
}

// Exp implements Strategy one column at a time. It exists for cross-checks;
// the recursion never needs the dense exponential.
func (k *Krylov) Exp(b *ratematrix.Block, t float64) (*mat.Dense, error) {
	n, err := squareDims(b)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(n, n, nil)
	e := make([]float64, n)
	for j := 0; j < n; j++ {
		for i := range e {
			e[i] = 0
		}
		e[j] = 1
		col, err := k.ExpVec(b, t, e)
		if err != nil {
			return nil, err
		}
		out.SetCol(j, col)
	}
	return out, nil
}

func (k *Krylov) expv(a *ratematrix.CSR, t float64, v []float64) ([]float64, error) {
	k.last = KrylovStats{}
	n, _ := a.Dims()
	w := append([]float64(nil), v...)

	anorm := a.NormInf()
	beta := floats.Norm(w, 2)
	if t == 0 || anorm == 0 || beta == 0 {
		return w, nil
	}

	m := min(k.dimension, n)
	tol := k.tolerance
	sgn := 1.0
	if t < 0 {
		sgn = -1
	}
	tOut := math.Abs(t)

	xm := 1 / float64(m)
	fact := math.Pow(float64(m+1)/math.E, float64(m+1)) * math.Sqrt(2*math.Pi*float64(m+1))
	tNew := nextStep((1/anorm)*math.Pow((fact*tol)/(4*beta*anorm), xm), tOut)

	basis := make([][]float64, m+1)
	for i := range basis {
		basis[i] = make([]float64, n)
	}
	p := make([]float64, n)
	h := mat.NewDense(m+2, m+2, nil)

	var tNow float64
	for tNow < tOut {
		k.last.Steps++
		if k.last.Steps > krylovMaxSteps {
			return nil, fmt.Errorf("%w: %d steps covered %g of %g", ErrToleranceExhausted, krylovMaxSteps, tNow, tOut)
		}
		tStep := math.Min(tOut-tNow, tNew)

		h.Zero()
		floats.ScaleTo(basis[0], 1/beta, w)
		mb, breakdown := m, false
		for j := 0; j < m; j++ {
			a.MulVecTo(p, basis[j])
			// Two Gram-Schmidt passes keep the basis orthogonal on stiff
			// blocks, where a single pass drifts.
			for pass := 0; pass < 2; pass++ {
				for i := 0; i <= j; i++ {
					c := floats.Dot(basis[i], p)
					h.Set(i, j, h.At(i, j)+c)
					floats.AddScaled(p, -c, basis[i])
				}
			}
			s := floats.Norm(p, 2)
			if s < krylovBreakdown {
				breakdown = true
				mb = j + 1
				tStep = tOut - tNow
				break
			}
			h.Set(j+1, j, s)
			floats.ScaleTo(basis[j+1], 1/s, p)
		}

		var avnorm float64
		extra := 0
		if !breakdown {
			extra = 2
			h.Set(m+1, m, 1)
			a.MulVecTo(p, basis[m])
			avnorm = floats.Norm(p, 2)
		} else {
			k.last.Breakdown = true
		}

		var f *mat.Dense
		var errLoc float64
		for reject := 0; ; reject++ {
			mx := mb + extra
			var scaled mat.Dense
			scaled.Scale(sgn*tStep, h.Slice(0, mx, 0, mx))
			f = new(mat.Dense)
			f.Exp(&scaled)

			if breakdown {
				errLoc = krylovBreakdown
				break
			}
			phi1 := math.Abs(beta * f.At(m, 0))
			phi2 := math.Abs(beta * f.At(m+1, 0) * avnorm)
			switch {
			case phi1 > 10*phi2:
				errLoc = phi2
				xm = 1 / float64(m)
			case phi1 > phi2:
				errLoc = (phi1 * phi2) / (phi1 - phi2)
				xm = 1 / float64(m)
			default:
				errLoc = phi1
				xm = 1 / float64(m-1)
			}
			if errLoc <= krylovDelta*tStep*tol {
				break
			}
			if reject >= k.rejections {
				return nil, fmt.Errorf("%w: local error %.3g after %d rejections at t=%g of %g", ErrToleranceExhausted, errLoc, reject, tNow, tOut)
			}
			k.last.Rejections++
			tStep = nextStep(krylovGamma*tStep*math.Pow(tStep*tol/errLoc, xm), tOut-tNow)
			monitoring.Debugf("expm: krylov step rejected (err %.3g), retrying with %g", errLoc, tStep)
		}

		// w = β·V·F[:, 0], using the extra basis vector when it exists.
		mx := mb
		if !breakdown {
			mx = mb + 1
		}
		for i := range w {
			w[i] = 0
		}
		for j := 0; j < mx && j <= m; j++ {
			floats.AddScaled(w, beta*f.At(j, 0), basis[j])
		}
		beta = floats.Norm(w, 2)
		tNow += tStep
		k.last.ErrorEstimate += errLoc
		if beta == 0 {
			break
		}
		tNew = nextStep(krylovGamma*tStep*math.Pow(tStep*tol/errLoc, xm), tOut-tNow)
	}
	return w, nil
}

// nextStep rounds a proposed step to two significant digits. Steps that
// are not positive and finite cover the remaining interval.
func nextStep(x, remaining float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 {
		return remaining
	}
	s := math.Pow(10, math.Floor(math.Log10(x))-1)
	r := math.Ceil(x/s) * s
	if r <= 0 || math.IsInf(r, 0) || math.IsNaN(r) {
		return remaining
	}
	return r
}
