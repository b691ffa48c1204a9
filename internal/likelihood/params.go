package likelihood

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidParameters is returned when a parameter vector does not fit the
// variant schema.
var ErrInvalidParameters = errors.New("likelihood: invalid parameters")

// ParameterSet is a validated parameter vector.
type ParameterSet struct {
	Variant  *Variant
	LogRates []float64
	N        int
}

// FromVector validates x against the variant schema. N must be a
// non-negative integer and every log-rate finite; nothing is coerced.
func FromVector(v *Variant, x []float64) (ParameterSet, error) {
	if want := len(v.Rates) + 1; len(x) != want {
		return ParameterSet{}, fmt.Errorf("%w: %s expects %d values %v, got %d", ErrInvalidParameters, v.Name, want, v.Schema(), len(x))
	}
	rates := append([]float64(nil), x[:len(v.Rates)]...)
	for i, r := range rates {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return ParameterSet{}, fmt.Errorf("%w: %s = %g", ErrInvalidParameters, v.Rates[i], r)
		}
	}
	n := x[len(v.Rates)]
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return ParameterSet{}, fmt.Errorf("%w: %s must be a non-negative integer, got %g", ErrInvalidParameters, EmitterParam, n)
	}
	return ParameterSet{Variant: v, LogRates: rates, N: int(n)}, nil
}

// Vector returns the raw parameter vector.
func (p ParameterSet) Vector() []float64 {
	return append(append([]float64(nil), p.LogRates...), float64(p.N))
}

// LogRate returns the named log10 rate.
func (p ParameterSet) LogRate(name string) (float64, bool) {
	for i, n := range p.Variant.Rates {
		if n == name {
			return p.LogRates[i], true
		}
	}
	return 0, false
}

// WithLogRates returns a copy with the log-rates replaced. The emitter
// count is kept.
func (p ParameterSet) WithLogRates(rates []float64) (ParameterSet, error) {
	return FromVector(p.Variant, append(append([]float64(nil), rates...), float64(p.N)))
}

func (p ParameterSet) String() string {
	var sb strings.Builder
	sb.WriteString(p.Variant.Name)
	sb.WriteString("{")
	for i, name := range p.Variant.Rates {
		fmt.Fprintf(&sb, "%s=%g ", name, p.LogRates[i])
	}
	fmt.Fprintf(&sb, "%s=%d}", EmitterParam, p.N)
	return sb.String()
}
