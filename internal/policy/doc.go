// Package policy holds the operator policy model and the pure evaluator
// that turns an introspected file plus a policy phase into an ordered Plan.
// The evaluator performs no I/O and never reads the clock; identical inputs
// always produce identical plans.
package policy
