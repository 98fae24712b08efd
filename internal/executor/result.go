package executor

import "vpo/internal/tools"

// OperationFailure records one non-fatal operation failure kept under the
// skip and continue error modes.
type OperationFailure struct {
	Operation string `json:"operation"`
	Error     string `json:"error"`
}

// PhaseResult is the state emitted from one phase execution.
type PhaseResult struct {
	Phase             string             `json:"phase"`
	ConstraintSkipped bool               `json:"constraint_skipped,omitempty"`
	SkipReason        string             `json:"skip_reason,omitempty"`
	ToolUsed          string             `json:"tool_used,omitempty"`
	UsedFallback      bool               `json:"used_fallback,omitempty"`
	Changed           bool               `json:"changed"`
	Stopped           bool               `json:"stopped,omitempty"`
	TracksRemoved     int                `json:"tracks_removed,omitempty"`
	TranscodeApplied  bool               `json:"transcode_applied,omitempty"`
	NewPath           string             `json:"new_path,omitempty"`
	// SourceHash is the SHA256 of the file before this phase changed it,
	// captured from the backup copy.
	SourceHash string `json:"source_hash,omitempty"`
	Failures          []OperationFailure `json:"failures,omitempty"`
	DurationSeconds   float64            `json:"duration_seconds"`
}

// RunResult aggregates a full policy run over one file.
type RunResult struct {
	PolicyName    string        `json:"policy_name"`
	Path          string        `json:"path"`
	SizeBefore    int64         `json:"size_before"`
	SizeAfter     int64         `json:"size_after"`
	AudioBefore   int           `json:"audio_before"`
	AudioAfter    int           `json:"audio_after"`
	SubsBefore    int           `json:"subtitle_before"`
	SubsAfter     int           `json:"subtitle_after"`
	VideoBefore   int           `json:"video_before"`
	VideoAfter    int           `json:"video_after"`
	RemovedCount  int           `json:"removed_count"`
	Phases        []PhaseResult `json:"phases"`
	TranscodeUsed bool          `json:"transcode_used"`
	HardwareUsed  bool          `json:"hardware_used"`
	// HashBefore and HashAfter bracket the run: the source hash of the
	// first changing phase and the hash of the final output.
	HashBefore string `json:"hash_before,omitempty"`
	HashAfter  string `json:"hash_after,omitempty"`
	// FinalProgress is the last streaming sample the tools reported.
	FinalProgress tools.Progress `json:"-"`
}

func (r *RunResult) failures() []OperationFailure {
	var out []OperationFailure
	for _, phase := range r.Phases {
		out = append(out, phase.Failures...)
	}
	return out
}
