// Package ffprobe shells out to ffprobe and converts its JSON output into
// the media.FileInfo value consumed by the policy evaluator.
package ffprobe
