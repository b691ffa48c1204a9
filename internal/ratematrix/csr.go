package ratematrix

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// CSR is a compressed-sparse-row matrix. Generator blocks are sparse for
// any nontrivial N (each state has at most one route per template), so
// matrix-vector products go through CSR.
//
// CSR implements mat.Matrix so it can be passed to gonum routines that only
// need element access.
type CSR struct {
	rows, cols int
	indptr     []int
	indices    []int
	data       []float64
}

var _ mat.Matrix = (*CSR)(nil)

// NewCSR compresses m, dropping exact zeros.
func NewCSR(m mat.Matrix) *CSR {
	r, c := m.Dims()
	s := &CSR{rows: r, cols: c, indptr: make([]int, r+1)}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); v != 0 {
				s.indices = append(s.indices, j)
				s.data = append(s.data, v)
			}
		}
		s.indptr[i+1] = len(s.data)
	}
	return s
}

// Dims implements mat.Matrix.
func (s *CSR) Dims() (int, int) { return s.rows, s.cols }

// At implements mat.Matrix.
func (s *CSR) At(i, j int) float64 {
	if i < 0 || i >= s.rows || j < 0 || j >= s.cols {
		panic(mat.ErrIndexOutOfRange)
	}
	for k := s.indptr[i]; k < s.indptr[i+1]; k++ {
		if s.indices[k] == j {
			return s.data[k]
		}
	}
	return 0
}

// T implements mat.Matrix.
func (s *CSR) T() mat.Matrix { return mat.Transpose{Matrix: s} }

// NNZ returns the number of stored entries.
func (s *CSR) NNZ() int { return len(s.data) }

// MulVecTo stores S·v in dst.
func (s *CSR) MulVecTo(dst, v []float64) {
	for i := 0; i < s.rows; i++ {
		var sum float64
		for k := s.indptr[i]; k < s.indptr[i+1]; k++ {
			sum += s.data[k] * v[s.indices[k]]
		}
		dst[i] = sum
	}
}

// VecMulTo stores v·S in dst.
func (s *CSR) VecMulTo(dst, v []float64) {
	for j := range dst {
		dst[j] = 0
	}
	for i := 0; i < s.rows; i++ {
		vi := v[i]
		if vi == 0 {
			continue
		}
		for k := s.indptr[i]; k < s.indptr[i+1]; k++ {
			dst[s.indices[k]] += vi * s.data[k]
		}
	}
}

// NormInf returns the maximum absolute row sum.
func (s *CSR) NormInf() float64 {
	var norm float64
	for i := 0; i < s.rows; i++ {
		var sum float64
		for k := s.indptr[i]; k < s.indptr[i+1]; k++ {
			sum += math.Abs(s.data[k])
		}
		norm = math.Max(norm, sum)
	}
	return norm
}
