package expm

import (
	"github.com/banshee-data/blinkfit/internal/statespace"
)

// Predictor fixes the strategy used for each observation class. Classes a
// model declares uncoupled use the diagonal fast path when one is set;
// every other class uses the general strategy.
type Predictor struct {
	general   Strategy
	diagonal  Strategy
	uncoupled [statespace.NumClasses]bool
}

// NewPredictor builds a predictor. A nil diagonal disables the fast path.
func NewPredictor(general, diagonal Strategy, uncoupled ...statespace.Class) *Predictor {
	p := &Predictor{general: general, diagonal: diagonal}
	for _, c := range uncoupled {
		if c.Valid() {
			p.uncoupled[c] = true
		}
	}
	return p
}

// For returns the strategy for segments dwelling in class c.
func (p *Predictor) For(c statespace.Class) Strategy {
	if p.diagonal != nil && c.Valid() && p.uncoupled[c] {
		return p.diagonal
	}
	return p.general
}

// General returns the strategy used for coupled classes.
func (p *Predictor) General() Strategy { return p.general }

// Invalidate drops the caches of every owned strategy that keeps one.
func (p *Predictor) Invalidate() {
	for _, s := range []Strategy{p.general, p.diagonal} {
		if inv, ok := s.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
	}
}
