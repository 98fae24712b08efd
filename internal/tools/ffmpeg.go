package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"vpo/internal/config"
	"vpo/internal/fileutil"
	"vpo/internal/media"
	"vpo/internal/policy"
	"vpo/internal/policy/transcode"
	"vpo/internal/services"
)

// hwInitFailures are stderr fragments that identify an encoder that could
// not initialize, as opposed to a genuine encode failure. Only these
// trigger the software fallback.
var hwInitFailures = []string{
	"Cannot load nvenc",
	"Cannot init CUDA",
	"No capable devices found",
	"Failed to initialise",
	"Device creation failed",
	"Error while opening encoder",
	"Generic error in an external library",
}

// Transcoder realizes every plan ffmpeg can express: stream removal,
// metadata, reorder, container changes, video and audio transcodes, and
// downmix synthesis. It sits last in the dispatch chain.
type Transcoder struct {
	binary  string
	cfg     config.Transcode
	tempDir string
	logger  *slog.Logger
}

// NewTranscoder constructs the ffmpeg wrapper from configuration.
func NewTranscoder(cfg *config.Config, logger *slog.Logger) *Transcoder {
	binary := cfg.Tools.FFmpeg
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Transcoder{binary: binary, cfg: cfg.Transcode, tempDir: cfg.Paths.TempDir, logger: logger}
}

func (t *Transcoder) Name() string { return "ffmpeg" }

// CanHandle accepts any plan. The dispatcher orders ffmpeg last so the
// cheaper matroska tools get first refusal.
func (t *Transcoder) CanHandle(req Request) bool {
	return req.Plan != nil
}

// Execute runs the encode into a staging file. Hardware encodes that fail
// to initialize are retried on the software path when fallback is
// configured.
func (t *Transcoder) Execute(ctx context.Context, req Request) (*Outcome, error) {
	if t.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	temp := fileutil.TempOutputPath(t.tempDir, req.TargetPath)
	layout := buildLayout(req)

	hwaccel := t.cfg.HardwareAccel
	if !videoTranscodeNeeded(req) {
		hwaccel = ""
	}

	outcome := &Outcome{Tool: t.Name(), OutputPath: temp}
	tail, err := t.run(ctx, req, layout, temp, hwaccel)
	if err != nil && hwaccel != "" && t.cfg.FallbackToCPU && isHWInitFailure(tail) {
		t.logger.Warn("hardware encoder failed to initialize, retrying on software",
			slog.String("accel", hwaccel), slog.String("file", req.File.Path))
		_ = fileutil.RemoveIfExists(temp)
		outcome.UsedFallback = true
		_, err = t.run(ctx, req, layout, temp, "")
	}
	if err != nil {
		_ = fileutil.RemoveIfExists(temp)
		return nil, err
	}
	if err := fileutil.EnsureNonEmpty(temp); err != nil {
		_ = fileutil.RemoveIfExists(temp)
		return nil, services.Wrap(services.ErrExternalTool, "tools", t.Name(), "encode produced no output", err)
	}
	return outcome, nil
}

// run executes one or two passes depending on the plan. Two-pass is only
// honored for the libx264/libx265 software encoders; rate-controlled
// hardware encoders ignore the stat file.
func (t *Transcoder) run(ctx context.Context, req Request, layout outputLayout, temp, hwaccel string) (string, error) {
	encoder := ""
	if req.Transcode != nil && req.Transcode.NeedsVideoTranscode {
		encoder = videoEncoder(req.Transcode.TargetVideoCodec, hwaccel)
	}
	twoPass := req.Transcode != nil && req.Transcode.TwoPass &&
		(encoder == "libx264" || encoder == "libx265")
	if req.Transcode != nil && req.Transcode.TwoPass && !twoPass {
		t.logger.Warn("two-pass not supported by encoder, using single-pass CRF",
			slog.String("encoder", encoder))
	}

	parser := newProgressParser(req.File.DurationSeconds, 0, req.OnProgress)

	var extra []string
	if t.cfg.CPUCores > 0 {
		extra = append(extra, "-threads", strconv.Itoa(t.cfg.CPUCores))
	}
	extra = append(extra, t.cfg.CustomArgs...)

	if twoPass {
		passLog := temp + ".passlog"
		defer cleanupPassLogs(passLog)

		// The last -f wins, so null overrides any container muxer here.
		first := FFmpegArgs(req, layout, encoder, nullSink)
		first = injectBeforeOutput(first, append(extra,
			"-pass", "1", "-passlogfile", passLog, "-an", "-sn", "-f", "null")...)
		if tail, err := runStreaming(ctx, t.binary, first, parser.Line); err != nil {
			return tail, err
		}
		second := FFmpegArgs(req, layout, encoder, temp)
		second = injectBeforeOutput(second, append(extra, "-pass", "2", "-passlogfile", passLog)...)
		return runStreaming(ctx, t.binary, second, parser.Line)
	}

	args := FFmpegArgs(req, layout, encoder, temp)
	if len(extra) > 0 {
		args = injectBeforeOutput(args, extra...)
	}
	return runStreaming(ctx, t.binary, args, parser.Line)
}

const nullSink = "/dev/null"

// injectBeforeOutput inserts extra args just before the trailing output path.
func injectBeforeOutput(args []string, extra ...string) []string {
	out := make([]string, 0, len(args)+len(extra))
	out = append(out, args[:len(args)-1]...)
	out = append(out, extra...)
	return append(out, args[len(args)-1])
}

func cleanupPassLogs(base string) {
	for _, suffix := range []string{".log", ".log.cutree", "-0.log", "-0.log.mbtree"} {
		_ = fileutil.RemoveIfExists(base + suffix)
	}
}

func isHWInitFailure(stderrTail string) bool {
	for _, fragment := range hwInitFailures {
		if strings.Contains(stderrTail, fragment) {
			return true
		}
	}
	return false
}

func videoTranscodeNeeded(req Request) bool {
	return req.Transcode != nil && req.Transcode.NeedsVideoTranscode
}

// outputStream is one mapped output. A synthesized stream has no source
// track of its own beyond the pan filter input.
type outputStream struct {
	inputIndex  int
	kind        media.TrackType
	audio       *transcode.AudioTrackPlan
	synthesized bool
}

type outputLayout struct {
	streams []outputStream
	// byInput maps an input track index to its global output position.
	byInput map[int]int
}

// buildLayout fixes the output stream order: the plan's reorder permutation
// when present, input order otherwise, with the synthesized downmix placed
// after the last audio stream.
func buildLayout(req Request) outputLayout {
	removed := make(map[int]bool)
	for _, index := range req.Plan.RemovedIndices() {
		removed[index] = true
	}

	order := make([]int, 0, len(req.File.Tracks))
	for _, action := range req.Plan.Actions {
		if action.Type == policy.ActionReorder {
			if decoded, err := policy.DecodeOrder(action.Desired); err == nil {
				order = decoded
			}
		}
	}
	if len(order) == 0 {
		for _, track := range req.File.Tracks {
			order = append(order, track.Index)
		}
	}

	kinds := make(map[int]media.TrackType, len(req.File.Tracks))
	for _, track := range req.File.Tracks {
		kinds[track.Index] = track.Type
	}

	audioPlans := make(map[int]*transcode.AudioTrackPlan)
	var downmix *transcode.AudioTrackPlan
	if req.Transcode != nil {
		for i := range req.Transcode.Audio {
			entry := &req.Transcode.Audio[i]
			if entry.Decision == transcode.AudioDownmix {
				downmix = entry
				continue
			}
			audioPlans[entry.InputIndex] = entry
		}
	}

	layout := outputLayout{byInput: make(map[int]int)}
	lastAudio := -1
	for _, index := range order {
		kind, ok := kinds[index]
		if !ok || removed[index] {
			continue
		}
		if plan := audioPlans[index]; plan != nil && plan.Decision == transcode.AudioRemove {
			continue
		}
		stream := outputStream{inputIndex: index, kind: kind, audio: audioPlans[index]}
		layout.byInput[index] = len(layout.streams)
		if kind == media.TrackAudio {
			lastAudio = len(layout.streams)
		}
		layout.streams = append(layout.streams, stream)
	}

	if downmix != nil {
		entry := outputStream{inputIndex: downmix.InputIndex, kind: media.TrackAudio, audio: downmix, synthesized: true}
		at := len(layout.streams)
		if lastAudio >= 0 {
			at = lastAudio + 1
		}
		layout.streams = append(layout.streams[:at:at], append([]outputStream{entry}, layout.streams[at:]...)...)
		// Re-number positions after the insertion.
		for pos, stream := range layout.streams {
			if !stream.synthesized {
				layout.byInput[stream.inputIndex] = pos
			}
		}
	}
	return layout
}

// FFmpegArgs renders the full ffmpeg argument list for a plan. Streams are
// mapped explicitly so removals and ordering are exact; everything defaults
// to stream copy and only streams the plan re-encodes get an override.
func FFmpegArgs(req Request, layout outputLayout, videoEnc, output string) []string {
	args := []string{"-y", "-nostdin", "-hide_banner", "-v", "error", "-nostats", "-progress", "pipe:1"}
	args = append(args, "-i", req.File.Path)

	var downmix *transcode.AudioTrackPlan
	for _, stream := range layout.streams {
		if stream.synthesized {
			downmix = stream.audio
		}
	}
	if downmix != nil {
		args = append(args, "-filter_complex",
			fmt.Sprintf("[0:%d]%s[dmx]", downmix.InputIndex, downmix.FilterRecipe))
	}

	for _, stream := range layout.streams {
		if stream.synthesized {
			args = append(args, "-map", "[dmx]")
		} else {
			args = append(args, "-map", "0:"+strconv.Itoa(stream.inputIndex))
		}
	}
	args = append(args, "-map_chapters", "0", "-c", "copy")

	counters := map[media.TrackType]int{}
	for pos, stream := range layout.streams {
		typeIndex := counters[stream.kind]
		counters[stream.kind]++
		switch stream.kind {
		case media.TrackVideo:
			if videoEnc != "" && req.Transcode != nil && stream.inputIndex == req.Transcode.PrimaryVideoIndex {
				args = append(args, videoArgs(req, typeIndex, videoEnc)...)
			}
		case media.TrackAudio:
			args = append(args, audioArgs(stream, pos, typeIndex)...)
		case media.TrackSubtitle:
			if target := containerTarget(req); target == "mp4" {
				args = append(args, fmt.Sprintf("-c:s:%d", typeIndex), "mov_text")
			}
		}
	}

	args = append(args, metadataArgs(req.Plan, layout)...)

	if req.Transcode != nil && req.Transcode.VFR {
		args = append(args, "-vsync", "passthrough")
	}
	if target := containerTarget(req); target != "" {
		args = append(args, "-f", muxerName(target))
	}
	return append(args, output)
}

func videoArgs(req Request, typeIndex int, encoder string) []string {
	selector := ":" + strconv.Itoa(typeIndex)
	args := []string{"-c:v" + selector, encoder}

	if req.Quality != nil {
		if req.Quality.CRF > 0 {
			flag := "-crf" + selector
			if strings.HasSuffix(encoder, "_nvenc") {
				flag = "-cq" + selector
			}
			args = append(args, flag, strconv.Itoa(req.Quality.CRF))
		}
		if req.Quality.Preset != "" {
			args = append(args, "-preset"+selector, req.Quality.Preset)
		}
		if req.Quality.VideoBitrate != "" {
			args = append(args, "-b:v"+selector, req.Quality.VideoBitrate)
		}
	}

	if req.Transcode.NeedsVideoScale {
		algorithm := req.ScaleAlgorithm
		if algorithm == "" {
			algorithm = "lanczos"
		}
		args = append(args, "-filter:v"+selector,
			fmt.Sprintf("scale=%d:%d:flags=%s", req.Transcode.TargetWidth, req.Transcode.TargetHeight, algorithm))
	}
	if req.Transcode.HDR {
		// Keep the source signaling so HDR survives the re-encode.
		args = append(args,
			"-color_primaries"+selector, "bt2020",
			"-color_trc"+selector, "smpte2084",
			"-colorspace"+selector, "bt2020nc")
	}
	return args
}

func audioArgs(stream outputStream, globalPos, typeIndex int) []string {
	plan := stream.audio
	if plan == nil || plan.Decision == transcode.AudioCopy {
		return nil
	}
	selector := ":" + strconv.Itoa(typeIndex)
	args := []string{"-c:a" + selector, audioEncoder(plan.TargetCodec)}
	if plan.TargetBitrate != "" {
		args = append(args, "-b:a"+selector, plan.TargetBitrate)
	}
	if stream.synthesized {
		if plan.Channels > 0 {
			args = append(args, "-ac"+selector, strconv.Itoa(plan.Channels))
		}
		if plan.Title != "" {
			args = append(args, fmt.Sprintf("-metadata:s:%d", globalPos), "title="+plan.Title)
		}
	}
	return args
}

func metadataArgs(plan *policy.Plan, layout outputLayout) []string {
	var args []string
	for _, action := range plan.Actions {
		if action.TrackIndex == nil {
			continue
		}
		pos, ok := layout.byInput[*action.TrackIndex]
		if !ok {
			continue
		}
		specifier := strconv.Itoa(pos)
		switch action.Type {
		case policy.ActionSetTitle:
			args = append(args, "-metadata:s:"+specifier, "title="+action.Desired)
		case policy.ActionSetLanguage:
			args = append(args, "-metadata:s:"+specifier, "language="+action.Desired)
		// The +/- modifier syntax edits one flag without resetting the
		// rest of the disposition bitmask.
		case policy.ActionClearDefault:
			args = append(args, "-disposition:"+specifier, "-default")
		case policy.ActionSetDefault:
			args = append(args, "-disposition:"+specifier, "+default")
		case policy.ActionSetForced:
			args = append(args, "-disposition:"+specifier, "+forced")
		case policy.ActionClearForced:
			args = append(args, "-disposition:"+specifier, "-forced")
		}
	}
	return args
}

func containerTarget(req Request) string {
	if req.Plan != nil && req.Plan.ContainerChange != nil {
		return media.NormalizeContainer(req.Plan.ContainerChange.Target)
	}
	return ""
}

func muxerName(normalized string) string {
	if normalized == "mp4" {
		return "mp4"
	}
	return "matroska"
}

func videoEncoder(target, hwaccel string) string {
	canonical := media.CanonicalCodec(target)
	switch hwaccel {
	case "nvenc":
		switch canonical {
		case "hevc":
			return "hevc_nvenc"
		case "h264":
			return "h264_nvenc"
		case "av1":
			return "av1_nvenc"
		}
	case "vaapi":
		switch canonical {
		case "hevc":
			return "hevc_vaapi"
		case "h264":
			return "h264_vaapi"
		}
	case "videotoolbox":
		switch canonical {
		case "hevc":
			return "hevc_videotoolbox"
		case "h264":
			return "h264_videotoolbox"
		}
	}
	switch canonical {
	case "hevc":
		return "libx265"
	case "h264":
		return "libx264"
	case "av1":
		return "libsvtav1"
	case "vp9":
		return "libvpx-vp9"
	default:
		return target
	}
}

func audioEncoder(target string) string {
	switch media.CanonicalCodec(target) {
	case "aac":
		return "aac"
	case "ac3":
		return "ac3"
	case "eac3":
		return "eac3"
	case "opus":
		return "libopus"
	case "flac":
		return "flac"
	case "mp3":
		return "libmp3lame"
	default:
		return target
	}
}
