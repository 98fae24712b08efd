package transcode

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"vpo/internal/media"
	"vpo/internal/policy"
)

// Downmix pan matrices. Stereo uses the Dolby Pro Logic II encode matrix
// so surround and dialog survive two-channel playback; 5.1 folds the side
// pair of a 7.1 layout symmetrically into front and back.
const (
	panStereoProLogicII = "pan=stereo|FL=FL+0.707*FC+0.8165*BL+0.5774*BR+0.5*LFE|FR=FR+0.707*FC+0.5774*BL+0.8165*BR+0.5*LFE"
	panFivePointFold    = "pan=5.1|FL=FL+0.707*SL|FR=FR+0.707*SR|FC=FC|LFE=LFE|BL=BL+0.707*SL|BR=BR+0.707*SR"
)

// vfrTolerance is the relative divergence between r_frame_rate and
// avg_frame_rate beyond which the stream is treated as variable frame rate.
const vfrTolerance = 0.005

// Request carries everything the planner needs. Removed maps input track
// indices the filter pass already excluded.
type Request struct {
	File        media.FileInfo
	Config      policy.TranscodeConfig
	AudioConfig *policy.AudioTranscodeConfig
	Synthesis   *policy.SynthesisRequest
	Removed     map[int]bool
}

// BuildPlan evaluates the transcode policy against the file. Input errors
// (unknown preset, bad bitrate string) are returned as errors; everything
// else lands in the plan.
func BuildPlan(req Request) (*Plan, error) {
	plan := &Plan{PrimaryVideoIndex: -1}

	primary, ok := req.File.PrimaryVideo()
	if !ok {
		return nil, fmt.Errorf("transcode plan: no video track in %s", req.File.Path)
	}
	plan.PrimaryVideoIndex = primary.Index
	if count := len(req.File.VideoTracks()); count > 1 {
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("%d video streams; planning against stream %d (largest area)", count, primary.Index))
	}

	plan.HDR = isHDR(primary)
	plan.VFR = isVFR(primary)
	if plan.VFR {
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("variable frame rate (r=%s avg=%s); timestamps will be preserved", primary.FrameRate, primary.AvgFrameRate))
	}

	plan.SourceBitrate = primary.BitRate
	if plan.SourceBitrate == 0 {
		plan.SourceBitrate = req.File.BitRate
	}
	if plan.SourceBitrate == 0 && req.File.DurationSeconds > 0 {
		plan.SourceBitrate = int64(float64(req.File.SizeBytes*8) / req.File.DurationSeconds)
		plan.BitrateEstimated = true
		plan.Warnings = append(plan.Warnings, "bitrate estimated from file size and duration")
	}

	if req.Config.SkipIf != nil {
		matched, reasons, err := evaluateSkip(primary, plan.SourceBitrate, *req.Config.SkipIf)
		if err != nil {
			return nil, err
		}
		if matched {
			plan.ShouldSkip = true
			plan.SkipReason = strings.Join(reasons, "; ")
			return plan, nil
		}
		plan.Reasons = reasons
	}

	if req.Config.MaxResolution != "" {
		limit, err := media.ResolvePreset(req.Config.MaxResolution)
		if err != nil {
			return nil, err
		}
		if !limit.Within(primary.Width, primary.Height) {
			scale := math.Min(
				float64(limit.Width)/float64(primary.Width),
				float64(limit.Height)/float64(primary.Height),
			)
			plan.NeedsVideoScale = true
			plan.TargetWidth = roundEven(scale * float64(primary.Width))
			plan.TargetHeight = roundEven(scale * float64(primary.Height))
			// Needing a scale implies re-encoding the video stream.
			plan.NeedsVideoTranscode = true
			if plan.HDR {
				plan.Warnings = append(plan.Warnings,
					"scaling HDR content; visual quality may suffer")
			}
		}
	}

	if req.Config.TargetVideoCodec != "" && !media.CodecMatches(primary.Codec, req.Config.TargetVideoCodec) {
		plan.NeedsVideoTranscode = true
	}
	if plan.NeedsVideoTranscode {
		plan.TargetVideoCodec = req.Config.TargetVideoCodec
		if plan.TargetVideoCodec == "" {
			plan.TargetVideoCodec = primary.Codec
		}
		plan.TwoPass = req.Config.TwoPass
	}

	plan.Audio = audioPlan(req)
	return plan, nil
}

// evaluateSkip applies the three optional predicates under logical AND.
// The returned reasons name the matched conditions on success, or explain
// the first failures otherwise.
func evaluateSkip(video media.Track, bitrate int64, skip policy.SkipCondition) (bool, []string, error) {
	var matched, failed []string

	if len(skip.CodecMatches) > 0 {
		if media.CodecMatchesAny(video.Codec, skip.CodecMatches) {
			matched = append(matched, fmt.Sprintf("codec %s matches %v", video.Codec, skip.CodecMatches))
		} else {
			failed = append(failed, fmt.Sprintf("codec %s does not match %v", video.Codec, skip.CodecMatches))
		}
	}
	if skip.ResolutionWithin != "" {
		limit, err := media.ResolvePreset(skip.ResolutionWithin)
		if err != nil {
			return false, nil, err
		}
		if limit.Within(video.Width, video.Height) {
			matched = append(matched, fmt.Sprintf("resolution %dx%d within %s", video.Width, video.Height, skip.ResolutionWithin))
		} else {
			failed = append(failed, fmt.Sprintf("resolution %dx%d exceeds %s", video.Width, video.Height, skip.ResolutionWithin))
		}
	}
	if skip.BitrateUnder != "" {
		threshold, err := media.ParseBitrate(skip.BitrateUnder)
		if err != nil {
			return false, nil, err
		}
		if bitrate > 0 && bitrate < threshold {
			matched = append(matched, fmt.Sprintf("bitrate %d under %s", bitrate, skip.BitrateUnder))
		} else {
			failed = append(failed, fmt.Sprintf("bitrate %d not under %s", bitrate, skip.BitrateUnder))
		}
	}

	if len(failed) > 0 {
		return false, failed, nil
	}
	return true, matched, nil
}

func audioPlan(req Request) []AudioTrackPlan {
	var plans []AudioTrackPlan
	var firstSurviving *media.Track

	for _, track := range req.File.AudioTracks() {
		track := track
		entry := AudioTrackPlan{
			InputIndex:  track.Index,
			SourceCodec: track.Codec,
			Channels:    track.Channels,
		}
		switch {
		case req.Removed[track.Index]:
			entry.Decision = AudioRemove
		case req.AudioConfig == nil:
			entry.Decision = AudioCopy
		case media.CodecMatchesAny(track.Codec, req.AudioConfig.PreserveCodecs):
			entry.Decision = AudioCopy
		case req.AudioConfig.TargetCodec != "" && !media.CodecMatches(track.Codec, req.AudioConfig.TargetCodec):
			entry.Decision = AudioTranscode
			entry.TargetCodec = req.AudioConfig.TargetCodec
			entry.TargetBitrate = req.AudioConfig.Bitrate
		default:
			entry.Decision = AudioCopy
		}
		if entry.Decision != AudioRemove && firstSurviving == nil {
			firstSurviving = &track
		}
		plans = append(plans, entry)
	}

	if req.Synthesis != nil && firstSurviving != nil {
		if downmix, ok := downmixPlan(*req.Synthesis, *firstSurviving); ok {
			plans = append(plans, downmix)
		}
	}
	return plans
}

// downmixPlan builds the one virtual track for an audio_synthesis request.
// The source must carry more channels than the target layout.
func downmixPlan(synth policy.SynthesisRequest, source media.Track) (AudioTrackPlan, bool) {
	entry := AudioTrackPlan{
		InputIndex:    source.Index,
		Decision:      AudioDownmix,
		SourceCodec:   source.Codec,
		TargetCodec:   synth.Codec,
		TargetBitrate: synth.Bitrate,
		Title:         synth.Title,
	}
	switch synth.Downmix {
	case policy.DownmixStereo:
		if source.Channels <= 2 {
			return AudioTrackPlan{}, false
		}
		entry.Channels = 2
		entry.FilterRecipe = panStereoProLogicII
		if entry.Title == "" {
			entry.Title = "Stereo"
		}
	case policy.DownmixFivePoint:
		if source.Channels <= 6 {
			return AudioTrackPlan{}, false
		}
		entry.Channels = 6
		entry.FilterRecipe = panFivePointFold
		if entry.Title == "" {
			entry.Title = "Surround 5.1"
		}
	default:
		return AudioTrackPlan{}, false
	}
	return entry, true
}

func isHDR(video media.Track) bool {
	transfer := strings.ToLower(video.ColorTransfer)
	// PQ, HLG, or Dolby Vision signaled through bt2020 primaries.
	if transfer == "smpte2084" || transfer == "arib-std-b67" {
		return true
	}
	return strings.ToLower(video.ColorPrimaries) == "bt2020" && transfer != "bt709" && transfer != ""
}

func isVFR(video media.Track) bool {
	r := parseRational(video.FrameRate)
	avg := parseRational(video.AvgFrameRate)
	if r == 0 || avg == 0 {
		return false
	}
	return math.Abs(r-avg)/r > vfrTolerance
}

func parseRational(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if num, den, ok := strings.Cut(value, "/"); ok {
		n, errN := strconv.ParseFloat(num, 64)
		d, errD := strconv.ParseFloat(den, 64)
		if errN != nil || errD != nil || d == 0 {
			return 0
		}
		return n / d
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// roundEven rounds to the nearest even integer, as required by most
// encoders for chroma subsampling.
func roundEven(v float64) int {
	return int(math.Round(v/2)) * 2
}
