package ffprobe

import (
	"encoding/json"
	"testing"

	"vpo/internal/media"
)

const sampleProbe = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "hevc",
      "codec_type": "video",
      "width": 3840,
      "height": 2160,
      "r_frame_rate": "24000/1001",
      "avg_frame_rate": "24000/1001",
      "color_transfer": "smpte2084",
      "color_primaries": "bt2020",
      "disposition": {"default": 1, "forced": 0},
      "tags": {"language": "und"}
    },
    {
      "index": 1,
      "codec_name": "eac3",
      "codec_type": "audio",
      "channels": 6,
      "channel_layout": "5.1(side)",
      "bit_rate": "640000",
      "disposition": {"default": 1, "forced": 0},
      "tags": {"language": "en", "title": "Surround 5.1"}
    },
    {
      "index": 2,
      "codec_name": "subrip",
      "codec_type": "subtitle",
      "disposition": {"default": 0, "forced": 1},
      "tags": {"language": "fre"}
    }
  ],
  "format": {
    "filename": "/library/movie.mkv",
    "nb_streams": 3,
    "duration": "7265.130000",
    "size": "19327352832",
    "bit_rate": "21280000",
    "format_name": "matroska,webm",
    "tags": {"title": "Movie"}
  }
}`

func TestFileInfoConversion(t *testing.T) {
	var result Result
	if err := json.Unmarshal([]byte(sampleProbe), &result); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

	info := result.FileInfo("/library/movie.mkv")
	if info.Container != "matroska" {
		t.Errorf("container = %q, want matroska", info.Container)
	}
	if info.SizeBytes != 19327352832 {
		t.Errorf("size = %d", info.SizeBytes)
	}
	if len(info.Tracks) != 3 {
		t.Fatalf("track count = %d", len(info.Tracks))
	}

	video := info.Tracks[0]
	if video.Type != media.TrackVideo || video.Width != 3840 {
		t.Errorf("video track = %+v", video)
	}
	if video.ColorTransfer != "smpte2084" {
		t.Errorf("color transfer = %q", video.ColorTransfer)
	}

	audio := info.Tracks[1]
	if audio.Language != "eng" {
		t.Errorf("audio language = %q, want canonical eng", audio.Language)
	}
	if !audio.Default || audio.Channels != 6 {
		t.Errorf("audio track = %+v", audio)
	}
	if audio.Title != "Surround 5.1" {
		t.Errorf("audio title = %q", audio.Title)
	}
	if audio.DurationSeconds == 0 {
		t.Error("audio duration should inherit container duration")
	}

	sub := info.Tracks[2]
	if !sub.Forced || sub.Language != "fra" {
		t.Errorf("subtitle track = %+v", sub)
	}
}

func TestInspectRejectsEmptyPath(t *testing.T) {
	if _, err := Inspect(t.Context(), "ffprobe", "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
