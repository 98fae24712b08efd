package policy

// Schema is a complete operator policy: shared configuration plus a
// sequence of named phases.
type Schema struct {
	Name    string            `json:"name"`
	Version string            `json:"version,omitempty"`
	Config  Config            `json:"config"`
	Phases  []PhaseDefinition `json:"phases"`
}

// Config is policy-wide configuration shared by every phase.
type Config struct {
	// AudioLanguagePreference orders languages from most to least
	// preferred; the first preference present among kept audio tracks
	// receives the default flag.
	AudioLanguagePreference    []string `json:"audio_language_preference,omitempty"`
	SubtitleLanguagePreference []string `json:"subtitle_language_preference,omitempty"`
	// MinimumAudioTracks is the floor the filter pass may never cross for
	// files that start at or above it.
	MinimumAudioTracks    int      `json:"minimum_audio_tracks"`
	MinimumSubtitleTracks int      `json:"minimum_subtitle_tracks"`
	CommentaryPatterns    []string `json:"commentary_patterns,omitempty"`
}

// PhaseDefinition is one named stage of a policy. Any subset of the
// operation configs may be present; nil means the operation is absent from
// the phase.
type PhaseDefinition struct {
	Name             string                  `json:"name"`
	Container        *ContainerConfig        `json:"container,omitempty"`
	AudioFilter      *AudioFilterConfig      `json:"audio_filter,omitempty"`
	SubtitleFilter   *SubtitleFilterConfig   `json:"subtitle_filter,omitempty"`
	AttachmentFilter *AttachmentFilterConfig `json:"attachment_filter,omitempty"`
	TrackOrder       *TrackOrderConfig       `json:"track_order,omitempty"`
	DefaultFlags     *DefaultFlagsConfig     `json:"default_flags,omitempty"`
	Conditional      *ConditionalConfig      `json:"conditional,omitempty"`
	AudioSynthesis   *AudioSynthesisConfig   `json:"audio_synthesis,omitempty"`
	Transcode        *TranscodeConfig        `json:"transcode,omitempty"`
	AudioTranscode   *AudioTranscodeConfig   `json:"audio_transcode,omitempty"`
	FileTimestamp    *FileTimestampConfig    `json:"file_timestamp,omitempty"`
	Transcription    *TranscriptionConfig    `json:"transcription,omitempty"`
}

// HasFilters reports whether any filter kind is present in the phase.
func (p *PhaseDefinition) HasFilters() bool {
	return p.AudioFilter != nil || p.SubtitleFilter != nil || p.AttachmentFilter != nil
}

// ContainerConfig requests a container change.
type ContainerConfig struct {
	// Target is the desired container, "matroska" or "mp4".
	Target string `json:"target"`
}

// AudioFilterConfig selects which audio tracks survive.
type AudioFilterConfig struct {
	// Languages keeps only tracks whose language matches one of these
	// codes. Empty keeps all languages.
	Languages []string `json:"languages,omitempty"`
	// Codecs keeps only tracks whose codec alias-matches one of these.
	// Empty keeps all codecs.
	Codecs []string `json:"codecs,omitempty"`
	// MinChannels/MaxChannels bound the channel count; zero means
	// unbounded on that side.
	MinChannels int `json:"min_channels,omitempty"`
	MaxChannels int `json:"max_channels,omitempty"`
	// RemoveCommentary drops tracks whose title matches a commentary
	// pattern or whose cached classification says commentary.
	RemoveCommentary bool `json:"remove_commentary,omitempty"`
	// UseLanguageAnalysis substitutes a cached analysis's primary language
	// for the container tag when the analysis confidence meets
	// MinAnalysisConfidence. Corrects mistagged tracks before the language
	// predicate runs.
	UseLanguageAnalysis   bool    `json:"use_language_analysis,omitempty"`
	MinAnalysisConfidence float64 `json:"min_analysis_confidence,omitempty"`
}

// SubtitleFilterConfig selects which subtitle tracks survive. Forced
// subtitles are always kept regardless of the language list.
type SubtitleFilterConfig struct {
	Languages []string `json:"languages,omitempty"`
	Codecs    []string `json:"codecs,omitempty"`
}

// AttachmentFilterConfig controls attachment retention.
type AttachmentFilterConfig struct {
	// RemoveAll drops every attachment except those whose codec appears in
	// KeepCodecs.
	RemoveAll  bool     `json:"remove_all,omitempty"`
	KeepCodecs []string `json:"keep_codecs,omitempty"`
}

// Track order bucket names accepted by TrackOrderConfig.
const (
	BucketVideo          = "video"
	BucketAudio          = "audio"
	BucketAudioMain      = "audio_main"
	BucketAudioAlternate = "audio_alternate"
	BucketSubtitle       = "subtitle"
	BucketAttachment     = "attachment"
	BucketOther          = "other"
)

// TrackOrderConfig requests a specific kept-track ordering.
type TrackOrderConfig struct {
	// Order lists buckets first to last. Tracks in unlisted buckets sort
	// after all listed buckets in input order.
	Order []string `json:"order"`
}

// Subtitle default-flag modes.
const (
	SubtitleDefaultNone      = "none"
	SubtitleDefaultForced    = "forced"
	SubtitleDefaultPreferred = "preferred"
)

// DefaultFlagsConfig controls default-flag assignment. Video and audio
// defaults are fixed (first kept video; first kept audio in the preferred
// language); only the subtitle behavior is configurable.
type DefaultFlagsConfig struct {
	// Subtitle is one of none, forced, preferred. Empty means none.
	Subtitle string `json:"subtitle,omitempty"`
}

// ConditionalRule applies metadata edits when a plugin enrichment value
// matches.
type ConditionalRule struct {
	WhenPlugin string `json:"when_plugin"`
	WhenKey    string `json:"when_key"`
	WhenEquals string `json:"when_equals"`
	// TrackType limits the rule to tracks of this type; empty matches all.
	TrackType   string `json:"track_type,omitempty"`
	SetTitle    string `json:"set_title,omitempty"`
	SetLanguage string `json:"set_language,omitempty"`
	// SetForced sets or clears the forced flag; nil leaves it untouched.
	SetForced *bool `json:"set_forced,omitempty"`
}

// ConditionalConfig holds metadata rules gated on plugin enrichment.
type ConditionalConfig struct {
	Rules []ConditionalRule `json:"rules"`
}

// Downmix layouts accepted by AudioSynthesisConfig.
const (
	DownmixStereo    = "stereo"
	DownmixFivePoint = "5.1"
)

// AudioSynthesisConfig requests one synthesized downmix track derived from
// the first surviving audio stream.
type AudioSynthesisConfig struct {
	Downmix string `json:"downmix"`
	Codec   string `json:"codec,omitempty"`
	Bitrate string `json:"bitrate,omitempty"`
	Title   string `json:"title,omitempty"`
}

// SkipCondition short-circuits transcoding when every specified predicate
// passes. Unspecified predicates pass vacuously.
type SkipCondition struct {
	CodecMatches     []string `json:"codec_matches,omitempty"`
	ResolutionWithin string   `json:"resolution_within,omitempty"`
	BitrateUnder     string   `json:"bitrate_under,omitempty"`
}

// QualitySettings tune the encoder.
type QualitySettings struct {
	CRF          int    `json:"crf,omitempty"`
	Preset       string `json:"preset,omitempty"`
	VideoBitrate string `json:"video_bitrate,omitempty"`
}

// HardwareAccelConfig selects a hardware encoder and its fallback policy.
type HardwareAccelConfig struct {
	// Enabled is one of none, nvenc, vaapi, qsv, amf, videotoolbox.
	Enabled       string `json:"enabled"`
	FallbackToCPU bool   `json:"fallback_to_cpu"`
}

// TranscodeConfig requests video transcoding.
type TranscodeConfig struct {
	TargetVideoCodec string               `json:"target_video_codec,omitempty"`
	MaxResolution    string               `json:"max_resolution,omitempty"`
	TwoPass          bool                 `json:"two_pass,omitempty"`
	Quality          *QualitySettings     `json:"quality,omitempty"`
	SkipIf           *SkipCondition       `json:"skip_if,omitempty"`
	HardwareAccel    *HardwareAccelConfig `json:"hardware_acceleration,omitempty"`
}

// AudioTranscodeConfig requests audio transcoding.
type AudioTranscodeConfig struct {
	TargetCodec string `json:"target_codec"`
	Bitrate     string `json:"bitrate,omitempty"`
	// PreserveCodecs lists codecs copied through untouched even when a
	// target codec is set.
	PreserveCodecs []string `json:"preserve_codecs,omitempty"`
}

// File timestamp modes and fallbacks.
const (
	TimestampPreserve    = "preserve"
	TimestampReleaseDate = "release_date"
	TimestampNow         = "now"

	TimestampFallbackPreserve = "preserve"
	TimestampFallbackNow      = "now"
	TimestampFallbackSkip     = "skip"
)

// FileTimestampConfig controls post-phase mtime handling.
type FileTimestampConfig struct {
	Mode string `json:"mode"`
	// DateSource names a preferred plugin metadata key for release_date
	// mode; empty walks the standard source order.
	DateSource string `json:"date_source,omitempty"`
	Fallback   string `json:"fallback,omitempty"`
}

// TranscriptionConfig enables the transcription operation.
type TranscriptionConfig struct {
	Enabled bool `json:"enabled"`
	// SetLanguageTags writes detected languages back onto untagged tracks
	// when confidence meets MinConfidence.
	SetLanguageTags bool    `json:"set_language_tags,omitempty"`
	MinConfidence   float64 `json:"min_confidence,omitempty"`
}
