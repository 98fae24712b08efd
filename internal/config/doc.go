// Package config loads and validates the orchestrator's TOML configuration.
// All path fields are expanded (~ and relative forms) during Load so the rest
// of the codebase deals only in absolute paths.
package config
