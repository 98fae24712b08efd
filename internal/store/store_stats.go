package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const statsColumns = "id, file_id, job_id, policy_name, size_before, size_after, video_before, video_after, audio_before, audio_after, subtitle_before, subtitle_after, removed_count, phase_timings_json, action_results_json, encoder_fps, encoder_bitrate, encoder_frames, encoder_type, hash_before, hash_after, created_at"

func scanStats(scanner rowScanner) (*ProcessingStats, error) {
	var (
		id             int64
		fileID         int64
		jobID          sql.NullString
		policyName     sql.NullString
		sizeBefore     int64
		sizeAfter      int64
		videoBefore    int
		videoAfter     int
		audioBefore    int
		audioAfter     int
		subBefore      int
		subAfter       int
		removedCount   int
		phaseTimings   sql.NullString
		actionResults  sql.NullString
		encoderFPS     sql.NullFloat64
		encoderBitrate sql.NullString
		encoderFrames  sql.NullInt64
		encoderType    sql.NullString
		hashBefore     sql.NullString
		hashAfter      sql.NullString
		createdRaw     string
	)

	if err := scanner.Scan(
		&id,
		&fileID,
		&jobID,
		&policyName,
		&sizeBefore,
		&sizeAfter,
		&videoBefore,
		&videoAfter,
		&audioBefore,
		&audioAfter,
		&subBefore,
		&subAfter,
		&removedCount,
		&phaseTimings,
		&actionResults,
		&encoderFPS,
		&encoderBitrate,
		&encoderFrames,
		&encoderType,
		&hashBefore,
		&hashAfter,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	stats := &ProcessingStats{
		ID:                id,
		FileID:            fileID,
		JobID:             jobID.String,
		PolicyName:        policyName.String,
		SizeBefore:        sizeBefore,
		SizeAfter:         sizeAfter,
		VideoBefore:       videoBefore,
		VideoAfter:        videoAfter,
		AudioBefore:       audioBefore,
		AudioAfter:        audioAfter,
		SubtitleBefore:    subBefore,
		SubtitleAfter:     subAfter,
		RemovedCount:      removedCount,
		PhaseTimingsJSON:  phaseTimings.String,
		ActionResultsJSON: actionResults.String,
		EncoderFPS:        encoderFPS.Float64,
		EncoderBitrate:    encoderBitrate.String,
		EncoderFrames:     encoderFrames.Int64,
		EncoderType:       EncoderType(encoderType.String),
		HashBefore:        hashBefore.String,
		HashAfter:         hashAfter.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		stats.CreatedAt = created
	}
	return stats, nil
}

// InsertProcessingStats records the outcome of one successful apply run.
func (s *Store) InsertProcessingStats(ctx context.Context, stats *ProcessingStats) (*ProcessingStats, error) {
	encoderType := stats.EncoderType
	if encoderType == "" {
		encoderType = EncoderUnknown
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO processing_stats (
            file_id, job_id, policy_name, size_before, size_after,
            video_before, video_after, audio_before, audio_after,
            subtitle_before, subtitle_after, removed_count,
            phase_timings_json, action_results_json,
            encoder_fps, encoder_bitrate, encoder_frames, encoder_type,
            hash_before, hash_after, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.FileID,
		nullableString(stats.JobID),
		nullableString(stats.PolicyName),
		stats.SizeBefore,
		stats.SizeAfter,
		stats.VideoBefore,
		stats.VideoAfter,
		stats.AudioBefore,
		stats.AudioAfter,
		stats.SubtitleBefore,
		stats.SubtitleAfter,
		stats.RemovedCount,
		nullableString(stats.PhaseTimingsJSON),
		nullableString(stats.ActionResultsJSON),
		stats.EncoderFPS,
		nullableString(stats.EncoderBitrate),
		stats.EncoderFrames,
		string(encoderType),
		nullableString(stats.HashBefore),
		nullableString(stats.HashAfter),
		nowStamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert processing stats: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetStatsDetail(ctx, id)
}

// GetStatsSummary aggregates processing stats across the whole library.
func (s *Store) GetStatsSummary(ctx context.Context) (StatsSummary, error) {
	var summary StatsSummary
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1),
            COALESCE(SUM(size_before), 0),
            COALESCE(SUM(size_after), 0),
            COALESCE(SUM(size_before - size_after), 0),
            COALESCE(SUM(removed_count), 0)
        FROM processing_stats`,
	).Scan(
		&summary.FilesProcessed,
		&summary.TotalSizeBefore,
		&summary.TotalSizeAfter,
		&summary.BytesSaved,
		&summary.TracksRemoved,
	)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("stats summary: %w", err)
	}
	return summary, nil
}

// GetPolicyStats aggregates runs and bytes saved per policy name.
func (s *Store) GetPolicyStats(ctx context.Context) ([]PolicyStats, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT COALESCE(policy_name, ''), COUNT(1), COALESCE(SUM(size_before - size_after), 0)
        FROM processing_stats GROUP BY policy_name ORDER BY COUNT(1) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("policy stats: %w", err)
	}
	defer rows.Close()

	var out []PolicyStats
	for rows.Next() {
		var entry PolicyStats
		if err := rows.Scan(&entry.PolicyName, &entry.Runs, &entry.BytesSaved); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// GetRecentStats returns the most recent stats rows, newest first.
func (s *Store) GetRecentStats(ctx context.Context, limit int) ([]*ProcessingStats, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+statsColumns+` FROM processing_stats ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent stats: %w", err)
	}
	defer rows.Close()

	var out []*ProcessingStats
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// GetStatsForFile returns the stats history for one file path, newest
// first.
func (s *Store) GetStatsForFile(ctx context.Context, path string) ([]*ProcessingStats, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+statsColumns+` FROM processing_stats
        WHERE file_id IN (SELECT id FROM files WHERE path = ?)
        ORDER BY created_at DESC`,
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("stats for file: %w", err)
	}
	defer rows.Close()

	var out []*ProcessingStats
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// GetStatsDetail fetches one stats row by identifier. Returns nil when
// absent.
func (s *Store) GetStatsDetail(ctx context.Context, id int64) (*ProcessingStats, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+statsColumns+` FROM processing_stats WHERE id = ?`, id)
	stats, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stats detail: %w", err)
	}
	return stats, nil
}
