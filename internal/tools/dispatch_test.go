package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vpo/internal/config"
	"vpo/internal/logging"
	"vpo/internal/media"
	"vpo/internal/policy"
	"vpo/internal/policy/transcode"
	"vpo/internal/services"
)

type fakeTool struct {
	name     string
	handles  bool
	executed bool
}

func (f *fakeTool) Name() string             { return f.name }
func (f *fakeTool) CanHandle(Request) bool   { return f.handles }
func (f *fakeTool) Execute(context.Context, Request) (*Outcome, error) {
	f.executed = true
	return &Outcome{Tool: f.name}, nil
}

func TestDispatchPicksFirstCapableTool(t *testing.T) {
	first := &fakeTool{name: "first", handles: false}
	second := &fakeTool{name: "second", handles: true}
	third := &fakeTool{name: "third", handles: true}
	d := NewDispatcherWith(logging.NewNop(), first, second, third)

	outcome, err := d.Dispatch(context.Background(), Request{Plan: &policy.Plan{}})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome.Tool != "second" || !second.executed {
		t.Fatalf("expected second tool, got %q", outcome.Tool)
	}
	if third.executed {
		t.Fatal("later tools must not run")
	}
}

func TestDispatchNoCapableTool(t *testing.T) {
	d := NewDispatcherWith(logging.NewNop(), &fakeTool{name: "only", handles: false})
	_, err := d.Dispatch(context.Background(), Request{})
	if !errors.Is(err, services.ErrToolUnavailable) {
		t.Fatalf("err = %v, want ErrToolUnavailable", err)
	}
}

func TestPropEditCapability(t *testing.T) {
	propedit := NewPropEdit("")
	metadataOnly := Request{
		File: media.FileInfo{Path: "/x.mkv", Container: "matroska"},
		Plan: &policy.Plan{TracksKept: 2},
	}
	if !propedit.CanHandle(metadataOnly) {
		t.Error("metadata-only matroska plan should be handled")
	}

	withRemoval := metadataOnly
	withRemoval.Plan = &policy.Plan{TracksRemoved: 1}
	if propedit.CanHandle(withRemoval) {
		t.Error("removals require a remux")
	}

	notMatroska := metadataOnly
	notMatroska.File = media.FileInfo{Path: "/x.avi", Container: "avi"}
	if propedit.CanHandle(notMatroska) {
		t.Error("non-matroska containers cannot be edited in place")
	}

	withTranscode := metadataOnly
	withTranscode.Transcode = &transcode.Plan{NeedsVideoTranscode: true}
	if propedit.CanHandle(withTranscode) {
		t.Error("pending stream work excludes the fast path")
	}
}

func TestRemuxerCapability(t *testing.T) {
	remuxer := NewRemuxer("", "")
	structural := Request{
		File: media.FileInfo{Path: "/x.mkv", Container: "matroska"},
		Plan: &policy.Plan{TracksRemoved: 1, RequiresRemux: true},
	}
	if !remuxer.CanHandle(structural) {
		t.Error("structural matroska plan should remux")
	}

	toMP4 := structural
	toMP4.Plan = &policy.Plan{ContainerChange: &policy.ContainerChange{Source: "matroska", Target: "mp4"}}
	if remuxer.CanHandle(toMP4) {
		t.Error("mkvmerge cannot produce mp4")
	}

	withSynthesis := structural
	withSynthesis.Plan = &policy.Plan{Synthesis: &policy.SynthesisRequest{Downmix: policy.DownmixStereo}}
	if remuxer.CanHandle(withSynthesis) {
		t.Error("downmix synthesis needs ffmpeg")
	}
}

// writeFFmpegStub writes a shell stub that simulates a hardware encoder
// init failure for *_nvenc args and a successful encode otherwise.
func writeFFmpegStub(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ffmpeg")
	script := `#!/bin/sh
for a in "$@"; do last="$a"; done
case "$*" in
*_nvenc*)
  echo "Cannot load nvenc" >&2
  exit 1
  ;;
esac
printf 'encoded' > "$last"
echo "frame=10"
echo "progress=end"
exit 0
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func hwFallbackRequest(dir string) Request {
	target := filepath.Join(dir, "movie.mkv")
	return Request{
		File: media.FileInfo{
			Path:            target,
			Container:       "matroska",
			DurationSeconds: 100,
			Tracks: []media.Track{
				{Index: 0, Type: media.TrackVideo, Codec: "h264", Width: 1920, Height: 1080},
			},
		},
		Plan: &policy.Plan{
			Dispositions: []policy.TrackDisposition{{Index: 0, Kept: true}},
			TracksKept:   1,
		},
		Transcode: &transcode.Plan{
			NeedsVideoTranscode: true,
			TargetVideoCodec:    "hevc",
			PrimaryVideoIndex:   0,
		},
		TargetPath: target,
	}
}

func TestTranscoderHardwareFallback(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Tools.FFmpeg = writeFFmpegStub(t)
	cfg.Transcode.HardwareAccel = "nvenc"
	cfg.Transcode.FallbackToCPU = true

	var updates []Progress
	req := hwFallbackRequest(dir)
	req.OnProgress = func(u Progress) { updates = append(updates, u) }

	transcoder := NewTranscoder(cfg, logging.NewNop())
	outcome, err := transcoder.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !outcome.UsedFallback {
		t.Fatal("expected software fallback after nvenc init failure")
	}
	data, err := os.ReadFile(outcome.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "encoded" {
		t.Fatalf("output content = %q", data)
	}
	if !strings.HasPrefix(filepath.Base(outcome.OutputPath), ".vpo_temp_") {
		t.Errorf("output should be a staging file, got %q", outcome.OutputPath)
	}
	if len(updates) == 0 || !updates[len(updates)-1].Done {
		t.Errorf("expected a final progress update, got %+v", updates)
	}
}

func TestTranscoderNoFallbackWithoutConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Tools.FFmpeg = writeFFmpegStub(t)
	cfg.Transcode.HardwareAccel = "nvenc"
	cfg.Transcode.FallbackToCPU = false

	transcoder := NewTranscoder(cfg, logging.NewNop())
	_, err := transcoder.Execute(context.Background(), hwFallbackRequest(dir))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("err = %v, want ErrExternalTool", err)
	}
}

func TestStagingHonorsConfiguredTempDir(t *testing.T) {
	cfg := &config.Config{}
	cfg.Paths.TempDir = "/var/tmp/vpo"

	transcoder := NewTranscoder(cfg, logging.NewNop())
	if transcoder.tempDir != "/var/tmp/vpo" {
		t.Errorf("transcoder tempDir = %q", transcoder.tempDir)
	}
	remuxer := NewRemuxer("", "/var/tmp/vpo")
	if remuxer.tempDir != "/var/tmp/vpo" {
		t.Errorf("remuxer tempDir = %q", remuxer.tempDir)
	}
}
