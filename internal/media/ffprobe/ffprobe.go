package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"vpo/internal/language"
	"vpo/internal/media"
)

var commandContext = exec.CommandContext

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index          int               `json:"index"`
	CodecName      string            `json:"codec_name"`
	CodecType      string            `json:"codec_type"`
	Duration       string            `json:"duration"`
	BitRate        string            `json:"bit_rate"`
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	SampleRate     string            `json:"sample_rate"`
	Channels       int               `json:"channels"`
	ChannelLayout  string            `json:"channel_layout"`
	RFrameRate     string            `json:"r_frame_rate"`
	AvgFrameRate   string            `json:"avg_frame_rate"`
	ColorTransfer  string            `json:"color_transfer"`
	ColorPrimaries string            `json:"color_primaries"`
	ColorSpace     string            `json:"color_space"`
	ColorRange     string            `json:"color_range"`
	Disposition    map[string]int    `json:"disposition"`
	Tags           map[string]string `json:"tags"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string            `json:"filename"`
	NBStreams  int               `json:"nb_streams"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	FormatName string            `json:"format_name"`
	Tags       map[string]string `json:"tags"`
}

// Prober wraps the ffprobe binary.
type Prober struct {
	binary string
}

// NewProber constructs a Prober, defaulting the binary name when empty.
func NewProber(binary string) *Prober {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary}
}

// Probe inspects path and returns the converted FileInfo.
func (p *Prober) Probe(ctx context.Context, path string) (media.FileInfo, error) {
	result, err := Inspect(ctx, p.binary, path)
	if err != nil {
		return media.FileInfo{}, err
	}
	return result.FileInfo(path), nil
}

// Inspect executes ffprobe against the provided path and decodes the JSON
// response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := commandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		detail := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, detail)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// FileInfo converts the raw probe result into the evaluator's value object.
// Track language tags are normalized to canonical three-letter codes.
func (r Result) FileInfo(path string) media.FileInfo {
	info := media.FileInfo{
		Path:            path,
		Container:       media.NormalizeContainer(r.Format.FormatName),
		SizeBytes:       parseInt(r.Format.Size),
		DurationSeconds: parseFloat(r.Format.Duration),
		BitRate:         parseInt(r.Format.BitRate),
		Tags:            cloneTags(r.Format.Tags),
		Tracks:          make([]media.Track, 0, len(r.Streams)),
	}

	for i, stream := range r.Streams {
		track := media.Track{
			Index:           i,
			Type:            media.ParseTrackType(stream.CodecType),
			Codec:           strings.ToLower(strings.TrimSpace(stream.CodecName)),
			Language:        language.ExtractFromTags(stream.Tags),
			Title:           stream.Tags["title"],
			Default:         stream.Disposition["default"] != 0,
			Forced:          stream.Disposition["forced"] != 0,
			Channels:        stream.Channels,
			ChannelLayout:   stream.ChannelLayout,
			Width:           stream.Width,
			Height:          stream.Height,
			FrameRate:       stream.RFrameRate,
			AvgFrameRate:    stream.AvgFrameRate,
			ColorTransfer:   stream.ColorTransfer,
			ColorPrimaries:  stream.ColorPrimaries,
			ColorSpace:      stream.ColorSpace,
			ColorRange:      stream.ColorRange,
			DurationSeconds: parseFloat(stream.Duration),
			BitRate:         parseInt(stream.BitRate),
		}
		if track.DurationSeconds == 0 {
			track.DurationSeconds = info.DurationSeconds
		}
		info.Tracks = append(info.Tracks, track)
	}
	return info
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil && !math.IsNaN(parsed) && parsed >= 0 {
		return parsed
	}
	return 0
}

func parseInt(value string) int64 {
	parsed := parseFloat(value)
	return int64(parsed)
}
