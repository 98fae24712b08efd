package tools

import (
	"strings"
	"testing"

	"vpo/internal/media"
	"vpo/internal/policy"
	"vpo/internal/policy/transcode"
)

func intptr(v int) *int { return &v }

func samplePlan() *policy.Plan {
	return &policy.Plan{
		Actions: []policy.PlannedAction{
			{Type: policy.ActionClearDefault, TrackIndex: intptr(1)},
			{Type: policy.ActionSetDefault, TrackIndex: intptr(2)},
			{Type: policy.ActionSetLanguage, TrackIndex: intptr(2), Desired: "jpn"},
			{Type: policy.ActionReorder, Desired: "0,2,1,3"},
		},
		Dispositions: []policy.TrackDisposition{
			{Index: 0, Kept: true},
			{Index: 1, Kept: true},
			{Index: 2, Kept: true},
			{Index: 3, Kept: false, Reason: "commentary"},
		},
		RequiresRemux: true,
		TracksKept:    3,
		TracksRemoved: 1,
	}
}

func sampleFile() media.FileInfo {
	return media.FileInfo{
		Path:      "/library/show.mkv",
		Container: "matroska,webm",
		Tracks: []media.Track{
			{Index: 0, Type: media.TrackVideo, Codec: "hevc", Width: 1920, Height: 1080},
			{Index: 1, Type: media.TrackAudio, Codec: "eac3", Channels: 6, Language: "eng"},
			{Index: 2, Type: media.TrackAudio, Codec: "aac", Channels: 2, Language: "jpn"},
			{Index: 3, Type: media.TrackAudio, Codec: "ac3", Channels: 2, Title: "Commentary"},
		},
	}
}

func TestPropEditArgs(t *testing.T) {
	actions := []policy.PlannedAction{
		{Type: policy.ActionClearDefault, TrackIndex: intptr(1)},
		{Type: policy.ActionSetDefault, TrackIndex: intptr(2)},
		{Type: policy.ActionSetTitle, TrackIndex: intptr(2), Desired: "Japanese"},
		{Type: policy.ActionSetForced, TrackIndex: intptr(4)},
	}
	args := PropEditArgs("/library/show.mkv", actions)
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"--edit track:2 --set flag-default=0",
		"--edit track:3 --set flag-default=1",
		"--edit track:3 --set name=Japanese",
		"--edit track:5 --set flag-forced=1",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if args[0] != "/library/show.mkv" {
		t.Errorf("first arg should be the file, got %q", args[0])
	}
}

func TestRemuxArgs(t *testing.T) {
	args := RemuxArgs("/library/.vpo_temp_show.mkv", sampleFile(), samplePlan())
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-o /library/.vpo_temp_show.mkv",
		"--audio-tracks 1,2",
		"--default-track-flag 1:0",
		"--default-track-flag 2:1",
		"--language 2:jpn",
		"--track-order 0:0,0:2,0:1",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if strings.Contains(joined, "0:3") {
		t.Error("removed track 3 must not appear in the track order")
	}
	if args[len(args)-1] != "/library/show.mkv" {
		t.Errorf("input must be the final arg, got %q", args[len(args)-1])
	}
}

func TestRemuxArgsDropAllSubtitles(t *testing.T) {
	file := media.FileInfo{
		Path: "/library/show.mkv",
		Tracks: []media.Track{
			{Index: 0, Type: media.TrackVideo},
			{Index: 1, Type: media.TrackSubtitle},
		},
	}
	plan := &policy.Plan{
		Dispositions: []policy.TrackDisposition{
			{Index: 0, Kept: true},
			{Index: 1, Kept: false},
		},
		TracksRemoved: 1,
	}
	args := RemuxArgs("/tmp/out.mkv", file, plan)
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--no-subtitles") {
		t.Errorf("args %q missing --no-subtitles", joined)
	}
}

func TestFFmpegArgsExplicitMapsAndOrder(t *testing.T) {
	req := Request{
		File:       sampleFile(),
		Plan:       samplePlan(),
		TargetPath: "/library/show.mkv",
	}
	layout := buildLayout(req)
	args := FFmpegArgs(req, layout, "", "/library/.vpo_temp_show.mkv")
	joined := strings.Join(args, " ")

	// Reorder 0,2,1 with 3 removed.
	want := "-map 0:0 -map 0:2 -map 0:1 -map_chapters 0 -c copy"
	if !strings.Contains(joined, want) {
		t.Fatalf("args %q missing %q", joined, want)
	}
	if strings.Contains(joined, "-map 0:3") {
		t.Error("removed track must not be mapped")
	}
	// Track 2 lands at output position 1, track 1 at position 2.
	for _, want := range []string{
		"-metadata:s:1 language=jpn",
		"-disposition:1 +default",
		"-disposition:2 -default",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

func TestFFmpegArgsTranscodeWithScale(t *testing.T) {
	file := media.FileInfo{
		Path:            "/library/movie.mkv",
		DurationSeconds: 7200,
		Tracks: []media.Track{
			{Index: 0, Type: media.TrackVideo, Codec: "h264", Width: 3840, Height: 2160},
			{Index: 1, Type: media.TrackAudio, Codec: "eac3", Channels: 6},
		},
	}
	plan := &policy.Plan{
		Dispositions: []policy.TrackDisposition{
			{Index: 0, Kept: true},
			{Index: 1, Kept: true},
		},
		TracksKept: 2,
	}
	tplan := &transcode.Plan{
		NeedsVideoTranscode: true,
		NeedsVideoScale:     true,
		TargetWidth:         1920,
		TargetHeight:        1080,
		TargetVideoCodec:    "hevc",
		PrimaryVideoIndex:   0,
		Audio: []transcode.AudioTrackPlan{
			{InputIndex: 1, Decision: transcode.AudioCopy, SourceCodec: "eac3"},
		},
	}
	req := Request{
		File:       file,
		Plan:       plan,
		Transcode:  tplan,
		Quality:    &policy.QualitySettings{CRF: 22, Preset: "slow"},
		TargetPath: "/library/movie.mkv",
	}
	args := FFmpegArgs(req, buildLayout(req), videoEncoder("hevc", ""), "/library/.vpo_temp_movie.mkv")
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-c:v:0 libx265",
		"-crf:0 22",
		"-preset:0 slow",
		"-filter:v:0 scale=1920:1080:flags=lanczos",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if strings.Contains(joined, "-c:a:0") {
		t.Error("copied audio must not get an encoder override")
	}
}

func TestFFmpegArgsDownmixSynthesis(t *testing.T) {
	file := media.FileInfo{
		Path: "/library/movie.mkv",
		Tracks: []media.Track{
			{Index: 0, Type: media.TrackVideo, Codec: "hevc", Width: 1920, Height: 1080},
			{Index: 1, Type: media.TrackAudio, Codec: "truehd", Channels: 8},
			{Index: 2, Type: media.TrackSubtitle, Codec: "subrip"},
		},
	}
	plan := &policy.Plan{
		Dispositions: []policy.TrackDisposition{
			{Index: 0, Kept: true},
			{Index: 1, Kept: true},
			{Index: 2, Kept: true},
		},
		Synthesis:  &policy.SynthesisRequest{Downmix: policy.DownmixStereo, Codec: "aac", Bitrate: "192k"},
		TracksKept: 3,
	}
	tplan := &transcode.Plan{
		PrimaryVideoIndex: 0,
		Audio: []transcode.AudioTrackPlan{
			{InputIndex: 1, Decision: transcode.AudioCopy, SourceCodec: "truehd"},
			{
				InputIndex:    1,
				Decision:      transcode.AudioDownmix,
				TargetCodec:   "aac",
				TargetBitrate: "192k",
				FilterRecipe:  "pan=stereo|FL=FL|FR=FR",
				Title:         "Stereo",
				Channels:      2,
			},
		},
	}
	req := Request{File: file, Plan: plan, Transcode: tplan, TargetPath: "/library/movie.mkv"}
	layout := buildLayout(req)
	args := FFmpegArgs(req, layout, "", "/library/.vpo_temp_movie.mkv")
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-filter_complex [0:1]pan=stereo|FL=FL|FR=FR[dmx]") {
		t.Errorf("args %q missing pan filter graph", joined)
	}
	// Synthesized track is mapped after the last audio, before subtitles.
	if !strings.Contains(joined, "-map 0:1 -map [dmx] -map 0:2") {
		t.Errorf("args %q map order wrong", joined)
	}
	for _, want := range []string{"-c:a:1 aac", "-b:a:1 192k", "-ac:1 2", "title=Stereo"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

func TestFFmpegArgsContainerChange(t *testing.T) {
	file := sampleFile()
	plan := &policy.Plan{
		Dispositions: []policy.TrackDisposition{
			{Index: 0, Kept: true},
			{Index: 1, Kept: true},
		},
		ContainerChange: &policy.ContainerChange{Source: "avi", Target: "matroska"},
	}
	req := Request{File: file, Plan: plan, TargetPath: "/library/show.mkv"}
	args := FFmpegArgs(req, buildLayout(req), "", "/library/.vpo_temp_show.mkv")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-f matroska") {
		t.Errorf("args %q missing -f matroska", joined)
	}
}

func TestVideoEncoderSelection(t *testing.T) {
	cases := []struct {
		codec, hwaccel, want string
	}{
		{"hevc", "", "libx265"},
		{"h265", "", "libx265"},
		{"h264", "", "libx264"},
		{"hevc", "nvenc", "hevc_nvenc"},
		{"h264", "videotoolbox", "h264_videotoolbox"},
		{"av1", "", "libsvtav1"},
	}
	for _, tc := range cases {
		if got := videoEncoder(tc.codec, tc.hwaccel); got != tc.want {
			t.Errorf("videoEncoder(%q, %q) = %q, want %q", tc.codec, tc.hwaccel, got, tc.want)
		}
	}
}
