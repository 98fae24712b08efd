// Package transcode plans video and audio transcoding: skip-condition
// evaluation, even-dimension scaling, per-track audio decisions, and the
// VFR/HDR/multi-video edge cases. Like the policy evaluator it is pure;
// the ffmpeg command builder consumes its output.
package transcode
