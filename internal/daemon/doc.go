// Package daemon hosts the long-running orchestrator process: it enforces
// single-instance execution with a lock file, verifies external tool
// availability before accepting work, and owns the workflow manager's
// lifecycle.
package daemon
