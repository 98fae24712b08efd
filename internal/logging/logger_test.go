package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, format string) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelDebug)
	var handler slog.Handler
	switch format {
	case "json":
		handler = newJSONHandler(buf, levelVar)
	default:
		handler = newConsoleHandler(buf, levelVar)
	}
	return slog.New(handler), buf
}

func TestConsoleHandlerPromotesComponent(t *testing.T) {
	logger, buf := newBufferLogger(t, "console")
	logger.With(String(FieldComponent, "worker")).Info("job claimed", Int64(FieldJobID, 42))

	line := buf.String()
	if !strings.Contains(line, " worker: job claimed") {
		t.Fatalf("component not promoted into prefix: %q", line)
	}
	if !strings.Contains(line, "job_id=42") {
		t.Fatalf("missing attribute: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should not repeat as attribute: %q", line)
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	logger, buf := newBufferLogger(t, "console")
	logger.Info("phase failed", String("reason", "tool exited 1"))
	if !strings.Contains(buf.String(), `reason="tool exited 1"`) {
		t.Fatalf("value with spaces not quoted: %q", buf.String())
	}
}

func TestJSONHandlerFieldNames(t *testing.T) {
	logger, buf := newBufferLogger(t, "json")
	logger.Info("scan complete")
	out := buf.String()
	for _, want := range []string{`"ts":`, `"level":"info"`, `"msg":"scan complete"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %q", want, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"junk":  slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
