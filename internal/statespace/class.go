package statespace

import (
	"fmt"
	"strings"
)

// Class is the observable class of a state.
type Class uint8

const (
	Dark   Class = iota // no emitter in the active species
	Bright              // at least one active emitter
)

// NumClasses is the number of observation classes.
const NumClasses = 2

// Classes lists the observation classes in index order.
var Classes = [NumClasses]Class{Dark, Bright}

// String returns the trajectory-file label of the class.
func (c Class) String() string {
	switch c {
	case Dark:
		return "dark"
	case Bright:
		return "bright"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Other returns the opposite class.
func (c Class) Other() Class {
	if c == Dark {
		return Bright
	}
	return Dark
}

// Valid reports whether c is one of the known classes.
func (c Class) Valid() bool {
	return c == Dark || c == Bright
}

// ParseClass parses a trajectory-file class label. Matching ignores case and
// surrounding whitespace.
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dark":
		return Dark, nil
	case "bright":
		return Bright, nil
	default:
		return 0, fmt.Errorf("unsupported observation class %q", s)
	}
}
