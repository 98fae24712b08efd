package tools

import (
	"math"
	"testing"
)

func feedBlock(p *progressParser, lines ...string) {
	for _, line := range lines {
		p.Line(line)
	}
}

func TestProgressParserEmitsOnBlockEnd(t *testing.T) {
	var updates []Progress
	parser := newProgressParser(200, 0, func(u Progress) { updates = append(updates, u) })

	feedBlock(parser,
		"frame=1200",
		"fps=48.2",
		"bitrate=1843.2kbits/s",
		"total_size=11534336",
		"out_time_us=50000000",
		"speed=2.0x",
		"progress=continue",
	)
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	u := updates[0]
	if u.FrameCurrent != 1200 || u.FPS != 48.2 || u.SizeCurrent != 11534336 {
		t.Errorf("update = %+v", u)
	}
	if math.Abs(u.Percent-25) > 0.01 {
		t.Errorf("percent = %f, want 25", u.Percent)
	}
	// 150s remaining at 2x speed.
	if math.Abs(u.EtaS-75) > 0.01 {
		t.Errorf("eta = %f, want 75", u.EtaS)
	}
	if u.Done {
		t.Error("continue block must not be final")
	}
}

func TestProgressParserEndForcesHundred(t *testing.T) {
	var last Progress
	parser := newProgressParser(200, 0, func(u Progress) { last = u })

	feedBlock(parser, "out_time_us=199000000", "progress=end")
	if !last.Done {
		t.Fatal("expected final update")
	}
	if last.Percent != 100 {
		t.Errorf("percent = %f, want 100", last.Percent)
	}
	if last.EtaS != 0 {
		t.Errorf("eta = %f, want 0", last.EtaS)
	}
}

func TestProgressParserIgnoresGarbage(t *testing.T) {
	count := 0
	parser := newProgressParser(0, 0, func(Progress) { count++ })
	feedBlock(parser, "not a key value line", "bitrate=N/A", "out_time_us=bogus")
	if count != 0 {
		t.Fatalf("no block terminator, expected no emissions, got %d", count)
	}
	feedBlock(parser, "progress=continue")
	if count != 1 {
		t.Fatalf("expected emission after terminator, got %d", count)
	}
}
