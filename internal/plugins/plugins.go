// Package plugins holds the provider registry for optional enrichment:
// metadata providers contribute per-file key/value records that feed
// conditional policy rules and the release-date timestamp source, and a
// transcription provider supplies language detection for audio tracks.
// An empty registry is valid; every consumer treats absence as a no-op.
package plugins

import (
	"context"
	"sort"
	"sync"

	"vpo/internal/media"
)

// MetadataProvider enriches one file with opaque key/value metadata.
// Hash identifies the provider version for acknowledgment gating.
type MetadataProvider interface {
	Name() string
	Hash() string
	Enrich(ctx context.Context, file media.FileInfo) (map[string]string, error)
}

// Transcription is the outcome of transcribing one audio track.
type Transcription struct {
	Language   string
	Confidence float64
	TrackType  string
	Transcript string
}

// TranscriptionProvider detects spoken language on an audio track.
type TranscriptionProvider interface {
	Name() string
	Transcribe(ctx context.Context, filePath string, track media.Track) (*Transcription, error)
}

// Registry is the provider set shared by workers. Registration happens at
// startup; lookups afterwards are concurrent.
type Registry struct {
	mu            sync.RWMutex
	metadata      map[string]MetadataProvider
	transcription TranscriptionProvider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{metadata: make(map[string]MetadataProvider)}
}

// RegisterMetadata adds or replaces a metadata provider by name.
func (r *Registry) RegisterMetadata(provider MetadataProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[provider.Name()] = provider
}

// SetTranscription installs the transcription provider.
func (r *Registry) SetTranscription(provider TranscriptionProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcription = provider
}

// MetadataProviders returns the registered providers in name order.
func (r *Registry) MetadataProviders() []MetadataProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.metadata))
	for name := range r.metadata {
		names = append(names, name)
	}
	sort.Strings(names)
	providers := make([]MetadataProvider, 0, len(names))
	for _, name := range names {
		providers = append(providers, r.metadata[name])
	}
	return providers
}

// Transcriber returns the transcription provider when one is registered.
func (r *Registry) Transcriber() (TranscriptionProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transcription, r.transcription != nil
}
