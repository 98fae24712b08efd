// Package logging owns slog logger construction and the standardized
// structured attribute vocabulary shared by the daemon, workers, and tools.
package logging
