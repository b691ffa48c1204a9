// Package statespace owns the discrete population states of an emitter
// assembly.
//
// Responsibilities: stars-and-bars enumeration of N indistinguishable
// emitters over k species, observation-class tagging (dark/bright), and
// class-contiguous indexing so that generator sub-blocks are index-range
// slices.
// Key types: Species, State, Space, Class.
//
// Dependency rule: statespace is a leaf package; it never imports the rate
// matrix or recursion layers.
package statespace
