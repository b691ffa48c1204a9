package likelihood

import (
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/blinkfit/internal/ratematrix"
	"github.com/banshee-data/blinkfit/internal/statespace"
)

// Variant names.
const (
	SingleDark = "single-dark"
	DoubleDark = "double-dark"
)

// EmitterParam is the schema name of the emitter count, always the last
// entry of a parameter vector.
const EmitterParam = "N"

// reaction is a transition template whose rate is one of the variant's
// log-rate parameters.
type reaction struct {
	name     string
	deltas   []int
	requires []int
	param    int
}

// Variant describes one photophysical model: its species, its log-rate
// parameters and the observation classes whose blocks carry no internal
// transitions.
type Variant struct {
	Name    string
	Species []statespace.Species

	// Rates names the log10 rate parameters in vector order. The first is
	// the activation rate, the one an activation profile modulates.
	Rates []string

	// Uncoupled lists classes with diagonal blocks for every N.
	Uncoupled []statespace.Class

	reactions []reaction
}

// Schema returns the parameter vector layout: the log-rates then N.
func (v *Variant) Schema() []string {
	return append(append([]string(nil), v.Rates...), EmitterParam)
}

// Transitions binds the variant's reactions to concrete rates.
func (v *Variant) Transitions(p ParameterSet, act Activation) []ratematrix.Transition {
	out := make([]ratematrix.Transition, 0, len(v.reactions))
	for _, r := range v.reactions {
		var rate ratematrix.RateFunc = ratematrix.FromLog10(p.LogRates[r.param])
		if r.param == 0 {
			rate = act.rate(p.LogRates[0])
		}
		out = append(out, ratematrix.Transition{
			Name:     r.name,
			Deltas:   r.deltas,
			Requires: r.requires,
			Rate:     ratematrix.Fixed(rate),
		})
	}
	return out
}

func (v *Variant) String() string { return v.Name }

// Species indices shared by both variants.
const (
	inactive = 0
	active   = 1
)

var variants = map[string]*Variant{
	SingleDark: {
		Name: SingleDark,
		Species: []statespace.Species{
			{Name: "I"}, {Name: "A", Active: true}, {Name: "D"}, {Name: "B"},
		},
		Rates:     []string{"log_ka", "log_kd", "log_kr", "log_kb"},
		Uncoupled: []statespace.Class{statespace.Dark},
		reactions: []reaction{
			{name: "activate", deltas: []int{-1, 1, 0, 0}, requires: []int{inactive}, param: 0},
			{name: "darken", deltas: []int{0, -1, 1, 0}, requires: []int{active}, param: 1},
			{name: "recover", deltas: []int{0, 1, -1, 0}, requires: []int{2}, param: 2},
			{name: "bleach", deltas: []int{0, -1, 0, 1}, requires: []int{active}, param: 3},
		},
	},
	DoubleDark: {
		Name: DoubleDark,
		Species: []statespace.Species{
			{Name: "I"}, {Name: "A", Active: true}, {Name: "D1"}, {Name: "D2"}, {Name: "B"},
		},
		Rates:     []string{"log_ka", "log_kd1", "log_kr1", "log_kd2", "log_kr2", "log_kb"},
		Uncoupled: []statespace.Class{statespace.Dark},
		reactions: []reaction{
			{name: "activate", deltas: []int{-1, 1, 0, 0, 0}, requires: []int{inactive}, param: 0},
			{name: "darken1", deltas: []int{0, -1, 1, 0, 0}, requires: []int{active}, param: 1},
			{name: "recover1", deltas: []int{0, 1, -1, 0, 0}, requires: []int{2}, param: 2},
			{name: "darken2", deltas: []int{0, -1, 0, 1, 0}, requires: []int{active}, param: 3},
			{name: "recover2", deltas: []int{0, 1, 0, -1, 0}, requires: []int{3}, param: 4},
			{name: "bleach", deltas: []int{0, -1, 0, 0, 1}, requires: []int{active}, param: 5},
		},
	},
}

// VariantNames returns the registered variant names, sorted.
func VariantNames() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupVariant returns the variant with the given name.
func LookupVariant(name string) (*Variant, error) {
	v, ok := variants[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("likelihood: unknown model %q (have %s)", name, strings.Join(VariantNames(), ", "))
	}
	return v, nil
}
