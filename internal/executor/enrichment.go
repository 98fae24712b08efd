package executor

import (
	"context"
	"encoding/json"
	"log/slog"

	"vpo/internal/policy"
	"vpo/internal/store"
)

// loadEnrichment assembles the optional plugin context for an evaluation
// from the store caches: per-plugin metadata payloads, language analyses,
// and track classifications keyed back to track indices.
func (e *Executor) loadEnrichment(ctx context.Context, fileRec *store.File) (policy.Enrichment, error) {
	enrich := policy.Enrichment{
		PluginMetadata:   make(map[string]map[string]string),
		LanguageAnalysis: make(map[int]policy.LanguageInfo),
		Classifications:  make(map[int]policy.Classification),
	}

	payloads, err := e.store.PluginMetadataForFile(ctx, fileRec.ID)
	if err != nil {
		return enrich, err
	}
	for plugin, payload := range payloads {
		values := make(map[string]string)
		if err := json.Unmarshal([]byte(payload), &values); err != nil {
			e.logger.Warn("skipping malformed plugin metadata",
				slog.String("plugin", plugin), slog.Int64("file_id", fileRec.ID), slog.Any("error", err))
			continue
		}
		enrich.PluginMetadata[plugin] = values
	}

	tracks, err := e.store.TracksForFile(ctx, fileRec.ID)
	if err != nil {
		return enrich, err
	}
	for _, track := range tracks {
		if analysis, err := e.store.LanguageAnalysisForTrack(ctx, track.ID); err != nil {
			return enrich, err
		} else if analysis != nil {
			enrich.LanguageAnalysis[track.Index] = policy.LanguageInfo{
				PrimaryLanguage: analysis.PrimaryLanguage,
				Confidence:      analysis.Confidence,
			}
		}
		if classification, err := e.store.ClassificationForTrack(ctx, track.ID); err != nil {
			return enrich, err
		} else if classification != nil {
			enrich.Classifications[track.Index] = policy.Classification{
				Label:      classification.Classification,
				Confidence: classification.Confidence,
			}
		}
	}
	return enrich, nil
}
