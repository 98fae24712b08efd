package executor

import (
	"context"
	"log/slog"

	"vpo/internal/media"
	"vpo/internal/policy"
	"vpo/internal/store"
)

// runTranscription detects spoken language on each audio track with a
// known duration and caches the result keyed by track id. A missing
// provider is logged and skipped without failing the phase.
func (e *Executor) runTranscription(ctx context.Context, fileRec *store.File, info media.FileInfo, cfg *policy.TranscriptionConfig) error {
	provider, ok := e.registry.Transcriber()
	if !ok {
		e.logger.Info("no transcription provider registered, skipping",
			slog.String("file", fileRec.Path))
		return nil
	}

	tracks, err := e.store.TracksForFile(ctx, fileRec.ID)
	if err != nil {
		return err
	}
	trackIDs := make(map[int]int64, len(tracks))
	for _, track := range tracks {
		trackIDs[track.Index] = track.ID
	}

	for _, track := range info.AudioTracks() {
		if track.DurationSeconds <= 0 && info.DurationSeconds <= 0 {
			continue
		}
		trackID, ok := trackIDs[track.Index]
		if !ok {
			continue
		}
		detection, err := provider.Transcribe(ctx, fileRec.Path, track)
		if err != nil {
			return err
		}
		if detection == nil || detection.Confidence < cfg.MinConfidence {
			continue
		}
		if _, err := e.store.UpsertTranscriptionResult(ctx, &store.TranscriptionResult{
			TrackID:    trackID,
			Language:   detection.Language,
			Confidence: detection.Confidence,
			TrackType:  detection.TrackType,
			Transcript: detection.Transcript,
		}); err != nil {
			return err
		}
	}
	return nil
}
