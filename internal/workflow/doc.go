// Package workflow owns the durable job machinery: a fixed-size worker
// pool claiming queued jobs by priority, per-job heartbeats, cooperative
// cancellation at progress checkpoints, a supervisor that reaps jobs whose
// worker died, and retention of terminal jobs. Handlers translate job
// types into store and executor calls.
package workflow
