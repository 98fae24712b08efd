package plugins

import (
	"context"
	"testing"

	"vpo/internal/media"
)

type stubMetadata struct {
	name string
}

func (s stubMetadata) Name() string { return s.name }
func (s stubMetadata) Hash() string { return "hash-" + s.name }
func (s stubMetadata) Enrich(context.Context, media.FileInfo) (map[string]string, error) {
	return map[string]string{"source": s.name}, nil
}

func TestRegistryMetadataOrderIsStable(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterMetadata(stubMetadata{name: "zeta"})
	registry.RegisterMetadata(stubMetadata{name: "alpha"})
	registry.RegisterMetadata(stubMetadata{name: "mid"})

	providers := registry.MetadataProviders()
	if len(providers) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(providers))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, provider := range providers {
		if provider.Name() != want[i] {
			t.Errorf("provider %d = %q, want %q", i, provider.Name(), want[i])
		}
	}
}

func TestRegistryReplaceByName(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterMetadata(stubMetadata{name: "tmdb"})
	registry.RegisterMetadata(stubMetadata{name: "tmdb"})
	if got := len(registry.MetadataProviders()); got != 1 {
		t.Fatalf("expected replacement, got %d providers", got)
	}
}

func TestTranscriberAbsence(t *testing.T) {
	registry := NewRegistry()
	if _, ok := registry.Transcriber(); ok {
		t.Fatal("empty registry must report no transcriber")
	}
}
