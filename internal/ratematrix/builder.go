package ratematrix

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/blinkfit/internal/monitoring"
	"github.com/banshee-data/blinkfit/internal/statespace"
	"gonum.org/v1/gonum/mat"
)

// DefaultRowSumTolerance bounds |Σ_j Q[i,j]| for a well-formed generator.
const DefaultRowSumTolerance = 1e-9

var (
	// ErrInvalidRate is returned when a rate function yields a negative,
	// NaN or infinite value.
	ErrInvalidRate = errors.New("ratematrix: invalid rate")

	// ErrRowSum is returned by CheckRowSums for a malformed generator.
	ErrRowSum = errors.New("ratematrix: generator row does not sum to zero")
)

// Builder produces Q(t) for one state space and transition set. It caches
// the last generator: a time-independent model is built once at t=0, a
// time-varying one is rebuilt whenever a different t is requested.
//
// A Builder is owned by a single model and is not safe for concurrent use.
type Builder struct {
	space       *statespace.Space
	routes      []Route
	timeVarying bool

	current    *Generator
	generation uint64
}

// NewBuilder discovers the routes of the transition set over the space.
func NewBuilder(space *statespace.Space, transitions []Transition) (*Builder, error) {
	routes, err := DiscoverRoutes(space, transitions)
	if err != nil {
		return nil, err
	}
	b := &Builder{space: space, routes: routes}
	for _, r := range routes {
		if r.Rate.TimeVarying() {
			b.timeVarying = true
			break
		}
	}
	return b, nil
}

// Space returns the state space the builder assembles over.
func (b *Builder) Space() *statespace.Space { return b.space }

// Routes returns the discovered routes. The slice must not be modified.
func (b *Builder) Routes() []Route { return b.routes }

// TimeVarying reports whether any route rate depends on time.
func (b *Builder) TimeVarying() bool { return b.timeVarying }

// Generation counts actual rebuilds. Caches derived from a generator are
// valid only while the generation is unchanged.
func (b *Builder) Generation() uint64 { return b.generation }

// Invalidate drops the cached generator so the next At rebuilds.
func (b *Builder) Invalidate() { b.current = nil }

// At returns Q(t), rebuilding only when needed.
func (b *Builder) At(t float64) (*Generator, error) {
	if !b.timeVarying {
		t = 0
	}
	if b.current != nil && b.current.t == t {
		return b.current, nil
	}
	g, err := b.build(t)
	if err != nil {
		return nil, err
	}
	b.generation++
	g.generation = b.generation
	b.current = g
	monitoring.Debugf("ratematrix: built generator %d at t=%g (%d states, %d routes)", b.generation, t, b.space.Len(), len(b.routes))
	return g, nil
}

func (b *Builder) build(t float64) (*Generator, error) {
	n := b.space.Len()
	q := mat.NewDense(n, n, nil)
	for _, r := range b.routes {
		rate := r.Rate.Rate(t)
		if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
			return nil, fmt.Errorf("%w: %s from %s at t=%g gave %g", ErrInvalidRate, r.Transition, b.space.State(r.From).ID, t, rate)
		}
		if rate == 0 {
			continue
		}
		// Compose multiplicity and rate in log space before exponentiating.
		v := math.Pow(10, r.LogMult+math.Log10(rate))
		q.Set(r.From, r.To, q.At(r.From, r.To)+v)
	}
	for i := 0; i < n; i++ {
		var out float64
		for j := 0; j < n; j++ {
			if j != i {
				out += q.At(i, j)
			}
		}
		q.Set(i, i, -out)
	}
	return &Generator{space: b.space, routes: b.routes, q: q, t: t}, nil
}

// Generator is an assembled Q(t). It is read-only once returned by a
// Builder; blocks are cut lazily and memoized.
type Generator struct {
	space      *statespace.Space
	routes     []Route
	q          *mat.Dense
	t          float64
	generation uint64
	blocks     map[BlockKey]*Block
}

// Dense returns the full generator. Callers must not modify it.
func (g *Generator) Dense() *mat.Dense { return g.q }

// Time returns the model time the generator was built at.
func (g *Generator) Time() float64 { return g.t }

// Generation returns the builder generation of this generator.
func (g *Generator) Generation() uint64 { return g.generation }

// Space returns the state space of the generator.
func (g *Generator) Space() *statespace.Space { return g.space }

// Routes returns the routes the generator was assembled from.
func (g *Generator) Routes() []Route { return g.routes }

// RowSums returns Σ_j Q[i,j] for every row.
func (g *Generator) RowSums() []float64 {
	n, _ := g.q.Dims()
	sums := make([]float64, n)
	for i := range sums {
		sums[i] = mat.Sum(g.q.RowView(i))
	}
	return sums
}

// CheckRowSums returns ErrRowSum if any row sum exceeds tol in magnitude,
// measured relative to the row's exit rate when that exceeds one.
func (g *Generator) CheckRowSums(tol float64) error {
	for i, s := range g.RowSums() {
		scale := math.Max(1, math.Abs(g.q.At(i, i)))
		if math.Abs(s) > tol*scale {
			return fmt.Errorf("%w: row %d (%s) sums to %g", ErrRowSum, i, g.space.State(i).ID, s)
		}
	}
	return nil
}

// Block returns the sub-block of rows in class from and columns in class
// to, or nil when either class has no states.
func (g *Generator) Block(from, to statespace.Class) *Block {
	key := BlockKey{From: from, To: to}
	if blk, ok := g.blocks[key]; ok {
		return blk
	}
	rr, cr := g.space.Range(from), g.space.Range(to)
	if rr.Empty() || cr.Empty() {
		return nil
	}
	dense := mat.DenseCopyOf(g.q.Slice(rr.Lo, rr.Hi, cr.Lo, cr.Hi))
	blk := &Block{key: key, generation: g.generation, dense: dense}
	if g.blocks == nil {
		g.blocks = make(map[BlockKey]*Block, 4)
	}
	g.blocks[key] = blk
	return blk
}

// SparseBlock returns the CSR form of Block(from, to), or nil.
func (g *Generator) SparseBlock(from, to statespace.Class) *CSR {
	blk := g.Block(from, to)
	if blk == nil {
		return nil
	}
	return blk.Sparse()
}
