package transcode

// AudioDecision is the per-track outcome of the audio plan.
type AudioDecision string

const (
	AudioCopy      AudioDecision = "copy"
	AudioTranscode AudioDecision = "transcode"
	AudioRemove    AudioDecision = "remove"
	// AudioDownmix marks the one synthesized virtual track derived from a
	// surviving source stream.
	AudioDownmix AudioDecision = "downmix"
)

// AudioTrackPlan is one entry of the audio plan. For downmix entries,
// InputIndex is the source stream the synthesized track is derived from.
type AudioTrackPlan struct {
	InputIndex    int           `json:"input_index"`
	Decision      AudioDecision `json:"decision"`
	SourceCodec   string        `json:"source_codec,omitempty"`
	TargetCodec   string        `json:"target_codec,omitempty"`
	TargetBitrate string        `json:"target_bitrate,omitempty"`
	// FilterRecipe is the pan matrix for downmix entries.
	FilterRecipe string `json:"filter_recipe,omitempty"`
	Title        string `json:"title,omitempty"`
	Channels     int    `json:"channels,omitempty"`
}

// Plan is the planner's output.
type Plan struct {
	ShouldSkip bool   `json:"should_skip"`
	SkipReason string `json:"skip_reason,omitempty"`
	// Reasons explains, per predicate, why skipping did not apply.
	Reasons []string `json:"reasons,omitempty"`

	NeedsVideoTranscode bool   `json:"needs_video_transcode"`
	NeedsVideoScale     bool   `json:"needs_video_scale"`
	TargetWidth         int    `json:"target_width,omitempty"`
	TargetHeight        int    `json:"target_height,omitempty"`
	TargetVideoCodec    string `json:"target_video_codec,omitempty"`
	TwoPass             bool   `json:"two_pass,omitempty"`

	PrimaryVideoIndex int  `json:"primary_video_index"`
	HDR               bool `json:"hdr"`
	VFR               bool `json:"vfr"`
	BitrateEstimated  bool `json:"bitrate_estimated,omitempty"`
	// SourceBitrate is bits per second, estimated from size and duration
	// when the container does not report one.
	SourceBitrate int64 `json:"source_bitrate,omitempty"`

	Audio    []AudioTrackPlan `json:"audio,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

// NeedsWork reports whether the plan changes any stream.
func (p *Plan) NeedsWork() bool {
	if p.ShouldSkip {
		return false
	}
	if p.NeedsVideoTranscode || p.NeedsVideoScale {
		return true
	}
	for _, audio := range p.Audio {
		if audio.Decision != AudioCopy {
			return true
		}
	}
	return false
}

// RemovedInputIndices lists input stream indices the command builder must
// exclude with explicit -map arguments.
func (p *Plan) RemovedInputIndices() []int {
	var out []int
	for _, audio := range p.Audio {
		if audio.Decision == AudioRemove {
			out = append(out, audio.InputIndex)
		}
	}
	return out
}
