package ratematrix

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/blinkfit/internal/statespace"
	"gonum.org/v1/gonum/stat/combin"
)

// ErrInvalidTransition is returned for a malformed transition template.
var ErrInvalidTransition = errors.New("ratematrix: invalid transition")

// Transition is a declarative transition template applied to every state.
type Transition struct {
	Name string

	// Deltas is the population change per species.
	Deltas []int

	// Requires lists species that must be occupied for the transition to
	// fire. Consumed species are always required.
	Requires []int

	Rate RateFactory
}

// Route is a concrete transition between two states.
type Route struct {
	From, To     int
	Transition   string
	Multiplicity float64 // C(n, k) of the limiting species
	LogMult      float64 // log10(Multiplicity)
	Rate         RateFunc
}

// LogRate returns log10(multiplicity × rate(t)). A zero rate yields -Inf.
func (r Route) LogRate(t float64) float64 {
	return r.LogMult + math.Log10(r.Rate.Rate(t))
}

func (tr Transition) validate(k int) error {
	if tr.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTransition)
	}
	if len(tr.Deltas) != k {
		return fmt.Errorf("%w: %s has %d deltas for %d species", ErrInvalidTransition, tr.Name, len(tr.Deltas), k)
	}
	net, moved := 0, false
	for _, d := range tr.Deltas {
		net += d
		moved = moved || d != 0
	}
	if !moved {
		return fmt.Errorf("%w: %s changes no population", ErrInvalidTransition, tr.Name)
	}
	if net != 0 {
		return fmt.Errorf("%w: %s does not conserve emitters (net %+d)", ErrInvalidTransition, tr.Name, net)
	}
	for _, r := range tr.Requires {
		if r < 0 || r >= k {
			return fmt.Errorf("%w: %s requires unknown species %d", ErrInvalidTransition, tr.Name, r)
		}
	}
	if tr.Rate == nil {
		return fmt.Errorf("%w: %s has no rate", ErrInvalidTransition, tr.Name)
	}
	return nil
}

// limiting returns the first consumed species, or -1 if none.
func (tr Transition) limiting() int {
	for i, d := range tr.Deltas {
		if d < 0 {
			return i
		}
	}
	return -1
}

// DiscoverRoutes applies every template to every state of the space and
// returns the admitted routes in state-major order.
func DiscoverRoutes(space *statespace.Space, transitions []Transition) ([]Route, error) {
	k := len(space.Species())
	for _, tr := range transitions {
		if err := tr.validate(k); err != nil {
			return nil, err
		}
	}

	routes := make([]Route, 0, space.Len()*len(transitions))
	dest := make([]int, k)
	for i, st := range space.States() {
		for _, tr := range transitions {
			if !reactantsPresent(st.Counts, tr) {
				continue
			}
			for s := range dest {
				dest[s] = st.Counts[s] + tr.Deltas[s]
			}
			if !space.Admits(dest) {
				continue
			}
			j, ok := space.Lookup(dest)
			if !ok {
				continue
			}

			mult, logMult := 1.0, 0.0
			if lim := tr.limiting(); lim >= 0 {
				n, kk := st.Counts[lim], -tr.Deltas[lim]
				logMult = combin.LogGeneralizedBinomial(float64(n), float64(kk)) / math.Ln10
				mult = math.Round(math.Pow(10, logMult))
			}

			routes = append(routes, Route{
				From:         i,
				To:           j,
				Transition:   tr.Name,
				Multiplicity: mult,
				LogMult:      logMult,
				Rate:         tr.Rate(st.Counts),
			})
		}
	}
	return routes, nil
}

func reactantsPresent(counts []int, tr Transition) bool {
	for s, d := range tr.Deltas {
		if d < 0 && counts[s] < -d {
			return false
		}
	}
	for _, r := range tr.Requires {
		if counts[r] < 1 {
			return false
		}
	}
	return true
}
