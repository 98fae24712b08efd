package services_test

import (
	"errors"
	"testing"

	"vpo/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("exit status 1")
	err := services.Wrap(services.ErrExternalTool, "transcoder", "encode", "ffmpeg failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error, got %v", err)
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "store", "claim", "", nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected default marker, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"contention", services.Wrap(services.ErrContention, "store", "upsert", "", nil), true},
		{"timeout", services.Wrap(services.ErrTimeout, "transcoder", "encode", "", nil), true},
		{"tool failure", services.Wrap(services.ErrExternalTool, "remuxer", "remux", "", nil), false},
		{"integrity", services.Wrap(services.ErrIntegrity, "store", "insert", "", nil), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsConstraint(t *testing.T) {
	err := services.Wrap(services.ErrConstraint, "evaluator", "audio_filter", "would drop below audio floor", nil)
	if !services.IsConstraint(err) {
		t.Fatalf("expected constraint classification for %v", err)
	}
	if services.IsConstraint(errors.New("plain")) {
		t.Fatal("plain error must not classify as constraint")
	}
}
