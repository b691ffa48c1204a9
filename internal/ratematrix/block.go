package ratematrix

import (
	"fmt"

	"github.com/banshee-data/blinkfit/internal/statespace"
	"gonum.org/v1/gonum/mat"
)

// BlockKey identifies a class block of a generator.
type BlockKey struct {
	From       statespace.Class
	To         statespace.Class
	Transposed bool
}

// String implements fmt.Stringer.
func (k BlockKey) String() string {
	s := fmt.Sprintf("Q[%s,%s]", k.From, k.To)
	if k.Transposed {
		s += "ᵀ"
	}
	return s
}

// Block is a class sub-block of a generator, e.g. Q_dd or Q_db. It is cut
// from one generator generation; exponential caches key on (Key,
// Generation).
type Block struct {
	key        BlockKey
	generation uint64
	dense      *mat.Dense
	sparse     *CSR
	transposed *Block
}

// NewBlock wraps a dense matrix as a block. It is used by strategies and
// tests that work on matrices not cut from a Generator.
func NewBlock(key BlockKey, generation uint64, m mat.Matrix) *Block {
	return &Block{key: key, generation: generation, dense: mat.DenseCopyOf(m)}
}

// Key returns the block identity.
func (b *Block) Key() BlockKey { return b.key }

// Generation returns the builder generation the block was cut from.
func (b *Block) Generation() uint64 { return b.generation }

// Dims returns the block shape.
func (b *Block) Dims() (r, c int) { return b.dense.Dims() }

// Dense returns the dense block. Callers must not modify it.
func (b *Block) Dense() *mat.Dense { return b.dense }

// Sparse returns the CSR form of the block, built on first use.
func (b *Block) Sparse() *CSR {
	if b.sparse == nil {
		b.sparse = NewCSR(b.dense)
	}
	return b.sparse
}

// T returns the transposed block, built on first use.
func (b *Block) T() *Block {
	if b.transposed == nil {
		key := b.key
		key.Transposed = !key.Transposed
		b.transposed = &Block{
			key:        key,
			generation: b.generation,
			dense:      mat.DenseCopyOf(b.dense.T()),
			transposed: b,
		}
	}
	return b.transposed
}

// Uncoupled reports whether a square block has no off-diagonal entries.
func (b *Block) Uncoupled() bool {
	r, c := b.dense.Dims()
	if r != c {
		return false
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if i != j && b.dense.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// Diagonal returns the diagonal of a square block.
func (b *Block) Diagonal() []float64 {
	r, _ := b.dense.Dims()
	d := make([]float64, r)
	for i := range d {
		d[i] = b.dense.At(i, i)
	}
	return d
}

// MulVec returns B·v for a column vector v.
func (b *Block) MulVec(v []float64) []float64 {
	r, _ := b.dense.Dims()
	dst := make([]float64, r)
	b.Sparse().MulVecTo(dst, v)
	return dst
}

// VecMul returns v·B for a row vector v.
func (b *Block) VecMul(v []float64) []float64 {
	_, c := b.dense.Dims()
	dst := make([]float64, c)
	b.Sparse().VecMulTo(dst, v)
	return dst
}
