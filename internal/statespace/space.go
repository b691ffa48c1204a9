package statespace

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/combin"
)

var (
	// ErrInvalidEmitterCount is returned for a negative emitter count.
	ErrInvalidEmitterCount = errors.New("statespace: emitter count must be a nonnegative integer")

	// ErrInvalidSpecies is returned when the species list cannot describe an
	// aggregated model (fewer than two species or not exactly one active).
	ErrInvalidSpecies = errors.New("statespace: invalid species list")
)

// Species is one population category, e.g. inactive, active, dark, bleached.
type Species struct {
	Name   string
	Active bool // occupancy of this species makes a state bright
}

// State is a single population state.
type State struct {
	ID     string
	Counts []int
	Class  Class
}

// Range is a half-open index range [Lo, Hi).
type Range struct {
	Lo int
	Hi int
}

// Len returns the number of indices covered by the range.
func (r Range) Len() int { return r.Hi - r.Lo }

// Empty reports whether the range covers no index.
func (r Range) Empty() bool { return r.Hi <= r.Lo }

// Options controls enumeration.
type Options struct {
	// ActiveCap bounds the active occupancy of every admitted state.
	// Zero or negative means unbounded.
	ActiveCap int
}

// Space is an immutable, class-ordered collection of states. All dark
// states are indexed before all bright states.
type Space struct {
	species []Species
	active  int
	n       int
	cap     int
	states  []State
	index   map[string]int
	ranges  [NumClasses]Range
	initial int
}

// Count returns the number of weak compositions of n into k bins,
// C(n+k-1, k-1). This is the size of an uncapped space.
func Count(n, k int) int {
	if n < 0 || k <= 0 {
		return 0
	}
	return combin.Binomial(n+k-1, k-1)
}

// Enumerate builds the state space for n emitters over the given species.
// The initial state places every emitter in species[0].
func Enumerate(species []Species, n int, opts Options) (*Space, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidEmitterCount, n)
	}
	if len(species) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 species, got %d", ErrInvalidSpecies, len(species))
	}
	active := -1
	seen := make(map[string]bool, len(species))
	for i, sp := range species {
		if sp.Name == "" || seen[sp.Name] {
			return nil, fmt.Errorf("%w: species %d has empty or duplicate name %q", ErrInvalidSpecies, i, sp.Name)
		}
		seen[sp.Name] = true
		if sp.Active {
			if active >= 0 {
				return nil, fmt.Errorf("%w: more than one active species", ErrInvalidSpecies)
			}
			active = i
		}
	}
	if active < 0 {
		return nil, fmt.Errorf("%w: no active species", ErrInvalidSpecies)
	}

	s := &Space{
		species: append([]Species(nil), species...),
		active:  active,
		n:       n,
		cap:     opts.ActiveCap,
	}

	k := len(species)
	states := make([]State, 0, Count(n, k))
	counts := make([]int, k)
	var walk func(pos, remaining int)
	walk = func(pos, remaining int) {
		if pos == k-1 {
			counts[pos] = remaining
			if s.admits(counts) {
				states = append(states, s.newState(counts))
			}
			return
		}
		// Highest occupancy first so the all-initial tuple leads.
		for c := remaining; c >= 0; c-- {
			counts[pos] = c
			walk(pos+1, remaining-c)
		}
	}
	walk(0, n)

	// Stable keeps enumeration order inside each class.
	sort.SliceStable(states, func(i, j int) bool { return states[i].Class < states[j].Class })

	s.states = states
	s.index = make(map[string]int, len(states))
	for i, st := range states {
		s.index[st.ID] = i
	}
	for _, c := range Classes {
		lo := sort.Search(len(states), func(i int) bool { return states[i].Class >= c })
		hi := sort.Search(len(states), func(i int) bool { return states[i].Class > c })
		s.ranges[c] = Range{Lo: lo, Hi: hi}
	}

	init := make([]int, k)
	init[0] = n
	idx, ok := s.index[FormatID(init)]
	if !ok {
		return nil, fmt.Errorf("%w: initial state %s excluded by active cap %d", ErrInvalidSpecies, FormatID(init), s.cap)
	}
	s.initial = idx
	return s, nil
}

func (s *Space) admits(counts []int) bool {
	return s.cap <= 0 || counts[s.active] <= s.cap
}

func (s *Space) newState(counts []int) State {
	c := append([]int(nil), counts...)
	class := Dark
	if c[s.active] > 0 {
		class = Bright
	}
	return State{ID: FormatID(c), Counts: c, Class: class}
}

// FormatID derives the state identifier from its count tuple.
func FormatID(counts []int) string {
	var b strings.Builder
	for i, c := range counts {
		if i > 0 {
			b.WriteByte('_')
		}
		b.WriteString(strconv.Itoa(c))
	}
	return b.String()
}

// Len returns the number of states.
func (s *Space) Len() int { return len(s.states) }

// N returns the total emitter count.
func (s *Space) N() int { return s.n }

// ActiveCap returns the active occupancy cap (zero or negative: unbounded).
func (s *Space) ActiveCap() int { return s.cap }

// Species returns a copy of the species list.
func (s *Space) Species() []Species { return append([]Species(nil), s.species...) }

// ActiveSpecies returns the index of the active species.
func (s *Space) ActiveSpecies() int { return s.active }

// State returns the state at index i.
func (s *Space) State(i int) State { return s.states[i] }

// States returns the states in index order. The returned slice must not be
// modified.
func (s *Space) States() []State { return s.states }

// Index returns the index of the state with the given ID.
func (s *Space) Index(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// Lookup returns the index of the state with the given counts.
func (s *Space) Lookup(counts []int) (int, bool) {
	return s.Index(FormatID(counts))
}

// Admits reports whether counts is a legal state of this space: right
// length, nonnegative, summing to N and within the active cap.
func (s *Space) Admits(counts []int) bool {
	if len(counts) != len(s.species) {
		return false
	}
	total := 0
	for _, c := range counts {
		if c < 0 {
			return false
		}
		total += c
	}
	return total == s.n && s.admits(counts)
}

// Range returns the contiguous index range of a class.
func (s *Space) Range(c Class) Range { return s.ranges[c] }

// Classes returns the classes that hold at least one state, in index order.
func (s *Space) Classes() []Class {
	var out []Class
	for _, c := range Classes {
		if !s.ranges[c].Empty() {
			out = append(out, c)
		}
	}
	return out
}

// ClassOf returns the class of the state at index i.
func (s *Space) ClassOf(i int) Class { return s.states[i].Class }

// Initial returns the index of the initial state.
func (s *Space) Initial() int { return s.initial }

// InitialVector returns the initial population distribution: a point mass
// on the initial state.
func (s *Space) InitialVector() []float64 {
	v := make([]float64, len(s.states))
	v[s.initial] = 1
	return v
}

// Restrict returns the components of v that fall into class c.
func (s *Space) Restrict(v []float64, c Class) []float64 {
	r := s.ranges[c]
	return append([]float64(nil), v[r.Lo:r.Hi]...)
}
