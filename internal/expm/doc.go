// Package expm evaluates matrix exponentials of generator blocks.
//
// Responsibilities: the Strategy interface (exp(tQ), exp(tQ)·v and
// v·exp(tQ)), its dense-eigendecomposition, diagonal, Krylov (Arnoldi
// expv) and Padé implementations, and the Predictor that fixes one
// strategy per observation class.
//
// Strategies that cache (Eigen, Diagonal) key their caches on the block
// key and the builder generation, and are owned by a single model. They are
// not safe for concurrent use.
//
// Numerical failures wrap ErrNumerical and are never papered over: no
// strategy falls back to another.
package expm
