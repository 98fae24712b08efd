// Package media defines the immutable value objects describing an
// introspected media file plus the pure helpers (codec alias matching,
// bitrate parsing, resolution presets) shared by the evaluator and planner.
package media
