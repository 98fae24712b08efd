package deps

import (
	"os"
	"path/filepath"
	"testing"

	"vpo/internal/config"
)

func writeStub(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := writeStub(t, binDir, "present")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unconfigured", Command: "", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatal("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatal("expected detail message for missing binary")
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for empty command: %#v", results[2])
	}
}

func TestProbeAvailability(t *testing.T) {
	binDir := t.TempDir()
	ffmpeg := writeStub(t, binDir, "ffmpeg")
	ffprobe := writeStub(t, binDir, "ffprobe")

	cfg := &config.Config{}
	cfg.Tools.FFmpeg = ffmpeg
	cfg.Tools.FFprobe = ffprobe
	cfg.Tools.MkvMerge = "definitely-missing-mkvmerge"

	avail := Probe(cfg)
	if !avail.Has("FFmpeg") || !avail.Has("FFprobe") {
		t.Fatal("expected ffmpeg and ffprobe to resolve")
	}
	if avail.Has("MKVToolNix mkvmerge") {
		t.Fatal("missing mkvmerge should not report available")
	}

	missing := avail.MissingRequired()
	for _, status := range missing {
		if status.Optional {
			t.Fatalf("optional tool in required-missing list: %#v", status)
		}
	}
	if len(missing) != 0 {
		t.Fatalf("only optional tools were absent, got %#v", missing)
	}
}

func TestMissingRequired(t *testing.T) {
	cfg := &config.Config{}
	cfg.Tools.FFmpeg = "definitely-missing-ffmpeg"
	cfg.Tools.FFprobe = "definitely-missing-ffprobe"

	missing := Probe(cfg).MissingRequired()
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing required tools, got %d", len(missing))
	}
}
