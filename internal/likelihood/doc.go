// Package likelihood composes the state space, generator builder,
// exponential strategies and scaled recursion into the entry points used by
// fitting tools:
//
//	Evaluate(params, trajectory)            -> log10 L
//	EvaluateCollection(ctx, params, trajs)  -> mean log10 L
//
// A parameter vector is the raw float form a bounded optimizer works with,
// ordered by the model variant's schema, for example
// [log_ka, log_kd, log_kr, log_kb, N] for the single-dark variant. Every
// evaluation builds its own Model, so the engine is safe to call from many
// goroutines at once.
package likelihood
