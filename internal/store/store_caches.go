package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vpo/internal/services"
)

// UpsertTranscriptionResult caches a transcription for a track, replacing
// any earlier result. Uses the fail-fast immediate upsert since plugin
// writers race with scan re-writes of the same track rows.
func (s *Store) UpsertTranscriptionResult(ctx context.Context, result *TranscriptionResult) (int64, error) {
	id, err := s.upsertReturningID(
		ctx,
		`INSERT INTO transcription_results (track_id, lang, confidence, track_type, transcript, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(track_id) DO UPDATE SET
            lang = excluded.lang,
            confidence = excluded.confidence,
            track_type = excluded.track_type,
            transcript = excluded.transcript,
            created_at = excluded.created_at
        RETURNING id`,
		result.TrackID,
		nullableString(result.Language),
		result.Confidence,
		nullableString(result.TrackType),
		nullableString(result.Transcript),
		nowStamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("upsert transcription: %w", err)
	}
	return id, nil
}

// TranscriptionForTrack fetches the cached transcription for a track.
// Returns nil when absent.
func (s *Store) TranscriptionForTrack(ctx context.Context, trackID int64) (*TranscriptionResult, error) {
	var (
		result     TranscriptionResult
		lang       sql.NullString
		confidence sql.NullFloat64
		trackType  sql.NullString
		transcript sql.NullString
		createdRaw string
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, track_id, lang, confidence, track_type, transcript, created_at
        FROM transcription_results WHERE track_id = ?`,
		trackID,
	).Scan(&result.ID, &result.TrackID, &lang, &confidence, &trackType, &transcript, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transcription: %w", err)
	}
	result.Language = lang.String
	result.Confidence = confidence.Float64
	result.TrackType = trackType.String
	result.Transcript = transcript.String
	if created, err := parseTimeString(createdRaw); err == nil {
		result.CreatedAt = created
	}
	return &result, nil
}

// UpsertLanguageAnalysis caches a language analysis and its segments for a
// track, replacing any earlier result wholesale. The result row and the
// segment replacement commit as one transaction, so a failure mid-list
// leaves the previous analysis intact.
func (s *Store) UpsertLanguageAnalysis(ctx context.Context, analysis *LanguageAnalysis) (int64, error) {
	for _, segment := range analysis.Segments {
		if segment.EndTime <= segment.StartTime {
			return 0, fmt.Errorf("upsert language analysis: segment end %.3f not after start %.3f",
				segment.EndTime, segment.StartTime)
		}
	}

	var resultID int64
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		err := conn.QueryRowContext(
			ctx,
			`INSERT INTO language_analysis_results (track_id, primary_language, confidence, created_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(track_id) DO UPDATE SET
                primary_language = excluded.primary_language,
                confidence = excluded.confidence,
                created_at = excluded.created_at
            RETURNING id`,
			analysis.TrackID,
			nullableString(analysis.PrimaryLanguage),
			analysis.Confidence,
			nowStamp(),
		).Scan(&resultID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return services.Wrap(services.ErrIntegrity, "store", "upsert", "upsert returned no row", err)
			}
			return err
		}

		if _, err := conn.ExecContext(
			ctx,
			`DELETE FROM language_analysis_segments WHERE result_id = ?`,
			resultID,
		); err != nil {
			return fmt.Errorf("clear analysis segments: %w", err)
		}
		for _, segment := range analysis.Segments {
			if _, err := conn.ExecContext(
				ctx,
				`INSERT INTO language_analysis_segments (result_id, lang, start_time, end_time)
                VALUES (?, ?, ?, ?)`,
				resultID,
				nullableString(segment.Language),
				segment.StartTime,
				segment.EndTime,
			); err != nil {
				return fmt.Errorf("insert analysis segment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upsert language analysis: %w", err)
	}
	return resultID, nil
}

// LanguageAnalysisForTrack fetches the cached analysis with its segments.
// Returns nil when absent.
func (s *Store) LanguageAnalysisForTrack(ctx context.Context, trackID int64) (*LanguageAnalysis, error) {
	var (
		analysis   LanguageAnalysis
		primary    sql.NullString
		confidence sql.NullFloat64
		createdRaw string
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, track_id, primary_language, confidence, created_at
        FROM language_analysis_results WHERE track_id = ?`,
		trackID,
	).Scan(&analysis.ID, &analysis.TrackID, &primary, &confidence, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get language analysis: %w", err)
	}
	analysis.PrimaryLanguage = primary.String
	analysis.Confidence = confidence.Float64
	if created, err := parseTimeString(createdRaw); err == nil {
		analysis.CreatedAt = created
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT lang, start_time, end_time FROM language_analysis_segments
        WHERE result_id = ? ORDER BY start_time`,
		analysis.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("get analysis segments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var segment LanguageSegment
		var lang sql.NullString
		if err := rows.Scan(&lang, &segment.StartTime, &segment.EndTime); err != nil {
			return nil, err
		}
		segment.Language = lang.String
		analysis.Segments = append(analysis.Segments, segment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// UpsertTrackClassification caches a classification for a track.
func (s *Store) UpsertTrackClassification(ctx context.Context, tc *TrackClassification) (int64, error) {
	id, err := s.upsertReturningID(
		ctx,
		`INSERT INTO track_classification_results (track_id, classification, confidence, created_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(track_id) DO UPDATE SET
            classification = excluded.classification,
            confidence = excluded.confidence,
            created_at = excluded.created_at
        RETURNING id`,
		tc.TrackID,
		nullableString(tc.Classification),
		tc.Confidence,
		nowStamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("upsert classification: %w", err)
	}
	return id, nil
}

// ClassificationForTrack fetches the cached classification for a track.
// Returns nil when absent.
func (s *Store) ClassificationForTrack(ctx context.Context, trackID int64) (*TrackClassification, error) {
	var (
		tc             TrackClassification
		classification sql.NullString
		confidence     sql.NullFloat64
		createdRaw     string
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, track_id, classification, confidence, created_at
        FROM track_classification_results WHERE track_id = ?`,
		trackID,
	).Scan(&tc.ID, &tc.TrackID, &classification, &confidence, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get classification: %w", err)
	}
	tc.Classification = classification.String
	tc.Confidence = confidence.Float64
	if created, err := parseTimeString(createdRaw); err == nil {
		tc.CreatedAt = created
	}
	return &tc, nil
}

// AcknowledgePlugin records operator acknowledgment of a plugin at a
// specific content hash. Re-acknowledging the same pair refreshes the
// timestamp.
func (s *Store) AcknowledgePlugin(ctx context.Context, name, hash string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO plugin_acks (plugin_name, plugin_hash, acknowledged_at)
        VALUES (?, ?, ?)
        ON CONFLICT(plugin_name, plugin_hash) DO UPDATE SET
            acknowledged_at = excluded.acknowledged_at`,
		name,
		hash,
		nowStamp(),
	); err != nil {
		return fmt.Errorf("acknowledge plugin: %w", err)
	}
	return nil
}

// PluginAcknowledged reports whether a plugin is acknowledged at the given
// hash. A changed hash requires fresh acknowledgment.
func (s *Store) PluginAcknowledged(ctx context.Context, name, hash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM plugin_acks WHERE plugin_name = ? AND plugin_hash = ?`,
		name,
		hash,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check plugin ack: %w", err)
	}
	return count > 0, nil
}

// UpsertPluginMetadata stores one plugin's opaque enrichment record for a
// file.
func (s *Store) UpsertPluginMetadata(ctx context.Context, fileID int64, pluginName, payloadJSON string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO plugin_file_metadata (file_id, plugin_name, payload_json, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(file_id, plugin_name) DO UPDATE SET
            payload_json = excluded.payload_json,
            updated_at = excluded.updated_at`,
		fileID,
		pluginName,
		nullableString(payloadJSON),
		nowStamp(),
	); err != nil {
		return fmt.Errorf("upsert plugin metadata: %w", err)
	}
	return nil
}

// PluginMetadataForFile returns all plugin enrichment records for a file,
// keyed by plugin name.
func (s *Store) PluginMetadataForFile(ctx context.Context, fileID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT plugin_name, COALESCE(payload_json, '') FROM plugin_file_metadata WHERE file_id = ?`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("plugin metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, payload string
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, err
		}
		out[name] = payload
	}
	return out, rows.Err()
}
