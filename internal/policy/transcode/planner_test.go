package transcode

import (
	"strings"
	"testing"

	"vpo/internal/media"
	"vpo/internal/policy"
)

func videoTrack(index int, codec string, w, h int, bitrate int64) media.Track {
	return media.Track{
		Index:        index,
		Type:         media.TrackVideo,
		Codec:        codec,
		Width:        w,
		Height:       h,
		BitRate:      bitrate,
		FrameRate:    "24000/1001",
		AvgFrameRate: "24000/1001",
	}
}

func audioTrack(index int, codec string, channels int) media.Track {
	return media.Track{Index: index, Type: media.TrackAudio, Codec: codec, Channels: channels}
}

func TestSkipWhenAllConditionsMatch(t *testing.T) {
	file := media.FileInfo{
		Path:      "/library/show.mkv",
		Container: "matroska,webm",
		Tracks: []media.Track{
			videoTrack(0, "hevc", 1920, 1080, 8_000_000),
			audioTrack(1, "eac3", 6),
		},
	}
	req := Request{
		File: file,
		Config: policy.TranscodeConfig{
			TargetVideoCodec: "hevc",
			MaxResolution:    "1080p",
			SkipIf: &policy.SkipCondition{
				CodecMatches:     []string{"hevc", "h265"},
				ResolutionWithin: "1080p",
				BitrateUnder:     "10M",
			},
		},
	}

	plan, err := BuildPlan(req)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if !plan.ShouldSkip {
		t.Fatalf("expected skip, got reasons %v", plan.Reasons)
	}
	for _, want := range []string{"codec hevc", "1920x1080", "under 10M"} {
		if !strings.Contains(plan.SkipReason, want) {
			t.Errorf("skip reason %q missing %q", plan.SkipReason, want)
		}
	}
	if plan.NeedsWork() {
		t.Error("skipped plan should report no work")
	}
}

func TestSkipRequiresEveryCondition(t *testing.T) {
	file := media.FileInfo{
		Path:   "/library/show.mkv",
		Tracks: []media.Track{videoTrack(0, "hevc", 1920, 1080, 15_000_000)},
	}
	plan, err := BuildPlan(Request{
		File: file,
		Config: policy.TranscodeConfig{
			SkipIf: &policy.SkipCondition{
				CodecMatches: []string{"hevc"},
				BitrateUnder: "10M",
			},
		},
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.ShouldSkip {
		t.Fatal("bitrate over threshold must defeat the skip")
	}
	if len(plan.Reasons) != 1 || !strings.Contains(plan.Reasons[0], "not under 10M") {
		t.Errorf("reasons = %v, want one bitrate failure", plan.Reasons)
	}
}

func TestDownscaleFourKToHEVC(t *testing.T) {
	file := media.FileInfo{
		Path: "/library/movie.mkv",
		Tracks: []media.Track{
			videoTrack(0, "h264", 3840, 2160, 40_000_000),
			audioTrack(1, "eac3", 6),
		},
	}
	plan, err := BuildPlan(Request{
		File: file,
		Config: policy.TranscodeConfig{
			TargetVideoCodec: "hevc",
			MaxResolution:    "1080p",
		},
		AudioConfig: &policy.AudioTranscodeConfig{
			TargetCodec:    "aac",
			Bitrate:        "192k",
			PreserveCodecs: []string{"eac3", "truehd"},
		},
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if !plan.NeedsVideoTranscode || !plan.NeedsVideoScale {
		t.Fatalf("expected transcode+scale, got %+v", plan)
	}
	if plan.TargetWidth != 1920 || plan.TargetHeight != 1080 {
		t.Errorf("target = %dx%d, want 1920x1080", plan.TargetWidth, plan.TargetHeight)
	}
	if plan.TargetVideoCodec != "hevc" {
		t.Errorf("target codec = %q", plan.TargetVideoCodec)
	}
	if len(plan.Audio) != 1 || plan.Audio[0].Decision != AudioCopy {
		t.Errorf("eac3 should be preserved as copy, got %+v", plan.Audio)
	}
}

func TestScaleRoundsToEvenDimensions(t *testing.T) {
	// 1998x1080 scope content into a 1280x720 box: 1280/1998 is the
	// binding ratio and yields 692.1 height.
	file := media.FileInfo{
		Path:   "/library/scope.mkv",
		Tracks: []media.Track{videoTrack(0, "h264", 1998, 1080, 20_000_000)},
	}
	plan, err := BuildPlan(Request{
		File:   file,
		Config: policy.TranscodeConfig{MaxResolution: "720p"},
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.TargetWidth != 1280 || plan.TargetHeight != 692 {
		t.Errorf("target = %dx%d, want 1280x692", plan.TargetWidth, plan.TargetHeight)
	}
	if plan.TargetWidth%2 != 0 || plan.TargetHeight%2 != 0 {
		t.Error("dimensions must be even")
	}
}

func TestAudioDecisions(t *testing.T) {
	file := media.FileInfo{
		Path: "/library/movie.mkv",
		Tracks: []media.Track{
			videoTrack(0, "hevc", 1920, 1080, 8_000_000),
			audioTrack(1, "truehd", 8),
			audioTrack(2, "dts", 6),
			audioTrack(3, "mp2", 2),
		},
	}
	plan, err := BuildPlan(Request{
		File:    file,
		Removed: map[int]bool{3: true},
		AudioConfig: &policy.AudioTranscodeConfig{
			TargetCodec:    "aac",
			Bitrate:        "256k",
			PreserveCodecs: []string{"truehd"},
		},
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	want := map[int]AudioDecision{1: AudioCopy, 2: AudioTranscode, 3: AudioRemove}
	if len(plan.Audio) != len(want) {
		t.Fatalf("audio entries = %d, want %d", len(plan.Audio), len(want))
	}
	for _, entry := range plan.Audio {
		if entry.Decision != want[entry.InputIndex] {
			t.Errorf("track %d: decision %s, want %s", entry.InputIndex, entry.Decision, want[entry.InputIndex])
		}
	}
	if got := plan.RemovedInputIndices(); len(got) != 1 || got[0] != 3 {
		t.Errorf("removed indices = %v, want [3]", got)
	}
}

func TestStereoDownmixFromFirstSurvivingTrack(t *testing.T) {
	file := media.FileInfo{
		Path: "/library/movie.mkv",
		Tracks: []media.Track{
			videoTrack(0, "hevc", 1920, 1080, 8_000_000),
			audioTrack(1, "aac", 2),
			audioTrack(2, "truehd", 8),
		},
	}
	plan, err := BuildPlan(Request{
		File:    file,
		Removed: map[int]bool{1: true},
		Synthesis: &policy.SynthesisRequest{
			Downmix: policy.DownmixStereo,
			Codec:   "aac",
			Bitrate: "192k",
		},
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	var downmix *AudioTrackPlan
	for i := range plan.Audio {
		if plan.Audio[i].Decision == AudioDownmix {
			downmix = &plan.Audio[i]
		}
	}
	if downmix == nil {
		t.Fatal("expected a downmix entry")
	}
	if downmix.InputIndex != 2 {
		t.Errorf("downmix source = %d, want first surviving track 2", downmix.InputIndex)
	}
	if downmix.Channels != 2 || !strings.Contains(downmix.FilterRecipe, "pan=stereo") {
		t.Errorf("downmix entry = %+v", downmix)
	}
	if !strings.Contains(downmix.FilterRecipe, "0.707*FC") {
		t.Errorf("recipe %q missing center fold coefficient", downmix.FilterRecipe)
	}
}

func TestDownmixSkippedWhenSourceTooNarrow(t *testing.T) {
	file := media.FileInfo{
		Path: "/library/movie.mkv",
		Tracks: []media.Track{
			videoTrack(0, "hevc", 1920, 1080, 8_000_000),
			audioTrack(1, "aac", 2),
		},
	}
	plan, err := BuildPlan(Request{
		File:      file,
		Synthesis: &policy.SynthesisRequest{Downmix: policy.DownmixStereo, Codec: "aac"},
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	for _, entry := range plan.Audio {
		if entry.Decision == AudioDownmix {
			t.Fatal("stereo source must not be downmixed to stereo")
		}
	}
}

func TestFivePointDownmixUsesSymmetricFold(t *testing.T) {
	file := media.FileInfo{
		Path: "/library/movie.mkv",
		Tracks: []media.Track{
			videoTrack(0, "hevc", 1920, 1080, 8_000_000),
			audioTrack(1, "truehd", 8),
		},
	}
	plan, err := BuildPlan(Request{
		File:      file,
		Synthesis: &policy.SynthesisRequest{Downmix: policy.DownmixFivePoint, Codec: "eac3", Bitrate: "640k"},
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	last := plan.Audio[len(plan.Audio)-1]
	if last.Decision != AudioDownmix || last.Channels != 6 {
		t.Fatalf("downmix entry = %+v", last)
	}
	if !strings.Contains(last.FilterRecipe, "FL=FL+0.707*SL") || !strings.Contains(last.FilterRecipe, "BR=BR+0.707*SR") {
		t.Errorf("recipe %q lacks symmetric side fold", last.FilterRecipe)
	}
}

func TestBitrateEstimatedFromSize(t *testing.T) {
	file := media.FileInfo{
		Path:            "/library/old.avi",
		SizeBytes:       900_000_000,
		DurationSeconds: 3600,
		Tracks:          []media.Track{videoTrack(0, "mpeg4", 720, 480, 0)},
	}
	plan, err := BuildPlan(Request{
		File: file,
		Config: policy.TranscodeConfig{
			SkipIf: &policy.SkipCondition{BitrateUnder: "10M"},
		},
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if !plan.BitrateEstimated {
		t.Error("expected estimated bitrate flag")
	}
	// 900 MB over an hour is 2 Mbps, well under the threshold.
	if plan.SourceBitrate != 2_000_000 {
		t.Errorf("estimate = %d, want 2000000", plan.SourceBitrate)
	}
	if !plan.ShouldSkip {
		t.Error("estimate should still satisfy the bitrate predicate")
	}
}

func TestVFRDetection(t *testing.T) {
	track := videoTrack(0, "h264", 1920, 1080, 8_000_000)
	track.FrameRate = "30000/1001"
	track.AvgFrameRate = "2157/90"
	file := media.FileInfo{Path: "/library/phone.mp4", Tracks: []media.Track{track}}

	plan, err := BuildPlan(Request{File: file, Config: policy.TranscodeConfig{TargetVideoCodec: "hevc"}})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if !plan.VFR {
		t.Error("expected VFR detection")
	}
	found := false
	for _, warning := range plan.Warnings {
		if strings.Contains(warning, "variable frame rate") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want a VFR warning", plan.Warnings)
	}
}

func TestMultiVideoPlansAgainstLargest(t *testing.T) {
	file := media.FileInfo{
		Path: "/library/disc.mkv",
		Tracks: []media.Track{
			videoTrack(0, "mjpeg", 640, 360, 0),
			videoTrack(1, "h264", 3840, 2160, 40_000_000),
		},
	}
	plan, err := BuildPlan(Request{
		File:   file,
		Config: policy.TranscodeConfig{TargetVideoCodec: "hevc", MaxResolution: "1080p"},
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.PrimaryVideoIndex != 1 {
		t.Errorf("primary = %d, want 1", plan.PrimaryVideoIndex)
	}
	if len(plan.Warnings) == 0 || !strings.Contains(plan.Warnings[0], "2 video streams") {
		t.Errorf("warnings = %v", plan.Warnings)
	}
}

func TestHDRScaleWarning(t *testing.T) {
	track := videoTrack(0, "hevc", 3840, 2160, 40_000_000)
	track.ColorTransfer = "smpte2084"
	track.ColorPrimaries = "bt2020"
	file := media.FileInfo{Path: "/library/uhd.mkv", Tracks: []media.Track{track}}

	plan, err := BuildPlan(Request{
		File:   file,
		Config: policy.TranscodeConfig{MaxResolution: "1080p"},
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if !plan.HDR {
		t.Error("expected HDR detection for smpte2084")
	}
	found := false
	for _, warning := range plan.Warnings {
		if strings.Contains(warning, "HDR") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want HDR scale warning", plan.Warnings)
	}
}

func TestUnknownPresetIsAnError(t *testing.T) {
	file := media.FileInfo{
		Path:   "/library/movie.mkv",
		Tracks: []media.Track{videoTrack(0, "h264", 1920, 1080, 8_000_000)},
	}
	if _, err := BuildPlan(Request{
		File:   file,
		Config: policy.TranscodeConfig{MaxResolution: "1081p"},
	}); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}
