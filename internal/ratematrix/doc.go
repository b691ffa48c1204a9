// Package ratematrix assembles the CTMC generator Q(t) of an emitter
// assembly from declarative transition templates.
//
// Responsibilities: route discovery (template × state, with combinatorial
// multiplicities), time-varying rate evaluation, dense assembly with zero
// row sums, rebuild caching keyed on time, and class-block extraction in
// dense and CSR form.
// Key types: Transition, RateFunc, Route, Builder, Generator, Block.
//
// Every actual rebuild bumps Builder.Generation; downstream caches (for
// example cached eigendecompositions) must key on it.
package ratematrix
