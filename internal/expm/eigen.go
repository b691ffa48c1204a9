package expm

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/banshee-data/blinkfit/internal/monitoring"
	"github.com/banshee-data/blinkfit/internal/ratematrix"
	"gonum.org/v1/gonum/mat"
)

// maxEigenCondition bounds ‖V‖₁‖V⁻¹‖₁. Beyond it the eigenvector basis is
// numerically defective and reconstruction loses more than four digits.
const maxEigenCondition = 1e12

// Eigen exponentiates through a cached eigendecomposition Q = V·diag(λ)·V⁻¹.
// The decomposition is computed once per (block key, generation); every
// later exponential at any t costs O(n²) for vector products.
type Eigen struct {
	cache blockCache[*eigenSystem]

	// Decompositions counts factorizations, for diagnostics and tests.
	Decompositions int
}

type eigenSystem struct {
	n      int
	values []complex128
	vecs   []complex128 // V, row-major
	inv    []complex128 // V⁻¹, row-major
}

// NewEigen returns an eigen strategy with an empty cache.
func NewEigen() *Eigen {
	return &Eigen{cache: make(blockCache[*eigenSystem])}
}

// Kind implements Strategy.
func (e *Eigen) Kind() Kind { return KindEigen }

// Invalidate drops every cached decomposition.
func (e *Eigen) Invalidate() {
	e.cache = make(blockCache[*eigenSystem])
}

func (e *Eigen) system(b *ratematrix.Block) (*eigenSystem, error) {
	if sys, ok := e.cache.get(b); ok {
		return sys, nil
	}
	n, err := squareDims(b)
	if err != nil {
		return nil, err
	}

	var eig mat.Eigen
	if ok := eig.Factorize(b.Dense(), mat.EigenRight); !ok {
		return nil, fmt.Errorf("%w: %s generation %d", ErrDecomposition, b.Key(), b.Generation())
	}
	values := eig.Values(nil)
	var cv mat.CDense
	eig.VectorsTo(&cv)

	vecs := make([]complex128, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			vecs[i*n+j] = cv.At(i, j)
		}
	}
	inv, err := invertComplex(n, vecs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s generation %d", err, b.Key(), b.Generation())
	}
	if cond := complexNorm1(n, vecs) * complexNorm1(n, inv); cond > maxEigenCondition || math.IsNaN(cond) {
		return nil, fmt.Errorf("%w: %s generation %d has condition %.3g", ErrSingularEigenvectors, b.Key(), b.Generation(), cond)
	}

	sys := &eigenSystem{n: n, values: values, vecs: vecs, inv: inv}
	e.cache.put(b, sys)
	e.Decompositions++
	monitoring.Debugf("expm: eigen decomposed %s generation %d (n=%d)", b.Key(), b.Generation(), n)
	return sys, nil
}

func (s *eigenSystem) growth(t float64) []complex128 {
	g := make([]complex128, s.n)
	for k, l := range s.values {
		g[k] = cmplx.Exp(l * complex(t, 0))
	}
	return g
}

// Exp implements Strategy.
func (e *Eigen) Exp(b *ratematrix.Block, t float64) (*mat.Dense, error) {
	sys, err := e.system(b)
	if err != nil {
		return nil, err
	}
	n := sys.n
	g := sys.growth(t)
	out := mat.NewDense(n, n, nil)
	row := make([]complex128, n)
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			row[k] = sys.vecs[i*n+k] * g[k]
		}
		for j := 0; j < n; j++ {
			var sum complex128
			for k := 0; k < n; k++ {
				sum += row[k] * sys.inv[k*n+j]
			}
			out.Set(i, j, real(sum))
		}
	}
	if err := finiteDense(KindEigen, b, t, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExpVec implements Strategy.
func (e *Eigen) ExpVec(b *ratematrix.Block, t float64, v []float64) ([]float64, error) {
	if _, err := checkVec(b, v); err != nil {
		return nil, err
	}
	sys, err := e.system(b)
	if err != nil {
		return nil, err
	}
	n := sys.n
	g := sys.growth(t)
	// y = diag(g)·V⁻¹·v, then w = Re(V·y)
	y := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		for j := 0; j < n; j++ {
			sum += sys.inv[k*n+j] * complex(v[j], 0)
		}
		y[k] = sum * g[k]
	}
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum complex128
		for k := 0; k < n; k++ {
			sum += sys.vecs[i*n+k] * y[k]
		}
		w[i] = real(sum)
	}
	if err := finiteSlice(KindEigen, b, t, w); err != nil {
		return nil, err
	}
	return w, nil
}

// VecExp implements Strategy.
func (e *Eigen) VecExp(b *ratematrix.Block, t float64, v []float64) ([]float64, error) {
	if _, err := checkVec(b, v); err != nil {
		return nil, err
	}
	sys, err := e.system(b)
	if err != nil {
		return nil, err
	}
	n := sys.n
	g := sys.growth(t)
	// y = v·V·diag(g), then w = Re(y·V⁻¹)
	y := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		for i := 0; i < n; i++ {
			sum += complex(v[i], 0) * sys.vecs[i*n+k]
		}
		y[k] = sum * g[k]
	}
	w := make([]float64, n)
	for j := 0; j < n; j++ {
		var sum complex128
		for k := 0; k < n; k++ {
			sum += y[k] * sys.inv[k*n+j]
		}
		w[j] = real(sum)
	}
	if err := finiteSlice(KindEigen, b, t, w); err != nil {
		return nil, err
	}
	return w, nil
}

// invertComplex inverts an n×n row-major complex matrix by Gauss-Jordan
// elimination with partial pivoting.
func invertComplex(n int, a []complex128) ([]complex128, error) {
	work := make([]complex128, n*n)
	copy(work, a)
	inv := make([]complex128, n*n)
	for i := 0; i < n; i++ {
		inv[i*n+i] = 1
	}
	scale := complexNorm1(n, a)
	if scale == 0 {
		return nil, ErrSingularEigenvectors
	}
	tiny := scale * float64(n) * 2.220446049250313e-16

	for col := 0; col < n; col++ {
		pivot, best := col, cmplx.Abs(work[col*n+col])
		for r := col + 1; r < n; r++ {
			if m := cmplx.Abs(work[r*n+col]); m > best {
				pivot, best = r, m
			}
		}
		if best <= tiny {
			return nil, ErrSingularEigenvectors
		}
		if pivot != col {
			swapRows(work, n, pivot, col)
			swapRows(inv, n, pivot, col)
		}
		p := work[col*n+col]
		for j := 0; j < n; j++ {
			work[col*n+j] /= p
			inv[col*n+j] /= p
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := work[r*n+col]
			if f == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				work[r*n+j] -= f * work[col*n+j]
				inv[r*n+j] -= f * inv[col*n+j]
			}
		}
	}
	return inv, nil
}

func swapRows(a []complex128, n, i, j int) {
	for k := 0; k < n; k++ {
		a[i*n+k], a[j*n+k] = a[j*n+k], a[i*n+k]
	}
}

// complexNorm1 is the maximum absolute column sum.
func complexNorm1(n int, a []complex128) float64 {
	var norm float64
	for j := 0; j < n; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += cmplx.Abs(a[i*n+j])
		}
		norm = math.Max(norm, sum)
	}
	return norm
}
