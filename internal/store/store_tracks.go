package store

import (
	"context"
	"database/sql"
	"fmt"
)

const trackColumns = "id, file_id, track_index, track_type, codec, lang, title, is_default, is_forced, channels, channel_layout, width, height, frame_rate, avg_frame_rate, color_transfer, color_primaries, color_space, color_range, duration_seconds"

func scanTrack(scanner rowScanner) (*Track, error) {
	var (
		id             int64
		fileID         int64
		index          int
		trackType      string
		codec          sql.NullString
		lang           sql.NullString
		title          sql.NullString
		isDefault      int
		isForced       int
		channels       sql.NullInt64
		channelLayout  sql.NullString
		width          sql.NullInt64
		height         sql.NullInt64
		frameRate      sql.NullString
		avgFrameRate   sql.NullString
		colorTransfer  sql.NullString
		colorPrimaries sql.NullString
		colorSpace     sql.NullString
		colorRange     sql.NullString
		duration       sql.NullFloat64
	)

	if err := scanner.Scan(
		&id,
		&fileID,
		&index,
		&trackType,
		&codec,
		&lang,
		&title,
		&isDefault,
		&isForced,
		&channels,
		&channelLayout,
		&width,
		&height,
		&frameRate,
		&avgFrameRate,
		&colorTransfer,
		&colorPrimaries,
		&colorSpace,
		&colorRange,
		&duration,
	); err != nil {
		return nil, err
	}

	return &Track{
		ID:              id,
		FileID:          fileID,
		Index:           index,
		Type:            trackType,
		Codec:           codec.String,
		Language:        lang.String,
		Title:           title.String,
		Default:         isDefault != 0,
		Forced:          isForced != 0,
		Channels:        int(channels.Int64),
		ChannelLayout:   channelLayout.String,
		Width:           int(width.Int64),
		Height:          int(height.Int64),
		FrameRate:       frameRate.String,
		AvgFrameRate:    avgFrameRate.String,
		ColorTransfer:   colorTransfer.String,
		ColorPrimaries:  colorPrimaries.String,
		ColorSpace:      colorSpace.String,
		ColorRange:      colorRange.String,
		DurationSeconds: duration.Float64,
	}, nil
}

// UpsertTracksForFile merges tracks into the catalog inside the caller's
// transaction: rows whose index already exists are updated, new indices are
// inserted, and indices absent from tracks are deleted. Keyed updates keep
// track IDs stable across re-scans so cached plugin results survive.
// The caller owns commit and rollback.
func UpsertTracksForFile(ctx context.Context, tx *sql.Tx, fileID int64, tracks []Track) error {
	existing := make(map[int]int64)
	rows, err := tx.QueryContext(ctx, `SELECT track_index, id FROM tracks WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("query existing tracks: %w", err)
	}
	for rows.Next() {
		var index int
		var id int64
		if err := rows.Scan(&index, &id); err != nil {
			rows.Close()
			return fmt.Errorf("scan existing track: %w", err)
		}
		existing[index] = id
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate existing tracks: %w", err)
	}
	rows.Close()

	seen := make(map[int]struct{}, len(tracks))
	for _, track := range tracks {
		seen[track.Index] = struct{}{}
		if id, ok := existing[track.Index]; ok {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE tracks SET
                    track_type = ?, codec = ?, lang = ?, title = ?,
                    is_default = ?, is_forced = ?, channels = ?, channel_layout = ?,
                    width = ?, height = ?, frame_rate = ?, avg_frame_rate = ?,
                    color_transfer = ?, color_primaries = ?, color_space = ?, color_range = ?,
                    duration_seconds = ?
                WHERE id = ?`,
				track.Type,
				nullableString(track.Codec),
				nullableString(track.Language),
				nullableString(track.Title),
				boolToInt(track.Default),
				boolToInt(track.Forced),
				track.Channels,
				nullableString(track.ChannelLayout),
				track.Width,
				track.Height,
				nullableString(track.FrameRate),
				nullableString(track.AvgFrameRate),
				nullableString(track.ColorTransfer),
				nullableString(track.ColorPrimaries),
				nullableString(track.ColorSpace),
				nullableString(track.ColorRange),
				track.DurationSeconds,
				id,
			); err != nil {
				return fmt.Errorf("update track %d: %w", track.Index, err)
			}
			continue
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO tracks (
                file_id, track_index, track_type, codec, lang, title,
                is_default, is_forced, channels, channel_layout,
                width, height, frame_rate, avg_frame_rate,
                color_transfer, color_primaries, color_space, color_range,
                duration_seconds
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID,
			track.Index,
			track.Type,
			nullableString(track.Codec),
			nullableString(track.Language),
			nullableString(track.Title),
			boolToInt(track.Default),
			boolToInt(track.Forced),
			track.Channels,
			nullableString(track.ChannelLayout),
			track.Width,
			track.Height,
			nullableString(track.FrameRate),
			nullableString(track.AvgFrameRate),
			nullableString(track.ColorTransfer),
			nullableString(track.ColorPrimaries),
			nullableString(track.ColorSpace),
			nullableString(track.ColorRange),
			track.DurationSeconds,
		); err != nil {
			return fmt.Errorf("insert track %d: %w", track.Index, err)
		}
	}

	for index, id := range existing {
		if _, ok := seen[index]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete stale track %d: %w", index, err)
		}
	}
	return nil
}

// UpsertFileWithTracks lands the file row and its track merge in one
// transaction so a re-scan can never leave a half-updated catalog entry.
func (s *Store) UpsertFileWithTracks(ctx context.Context, file *File, tracks []Track) (*File, error) {
	ctx = ensureContext(ctx)
	var result *File
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin upsert tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		timestamp := nowStamp()
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO files (
                path, size, modified_at, content_hash, container,
                scan_status, scan_error, scanned_at, scan_job_id, tags_json,
                created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(path) DO UPDATE SET
                size = excluded.size,
                modified_at = excluded.modified_at,
                content_hash = excluded.content_hash,
                container = excluded.container,
                scan_status = excluded.scan_status,
                scan_error = excluded.scan_error,
                scanned_at = excluded.scanned_at,
                scan_job_id = excluded.scan_job_id,
                tags_json = excluded.tags_json,
                updated_at = excluded.updated_at`,
			file.Path,
			file.Size,
			nullableTime(file.ModifiedAt),
			nullableString(file.ContentHash),
			nullableString(file.Container),
			string(file.ScanStatus),
			nullableString(file.ScanError),
			nullableTime(file.ScannedAt),
			nullableString(file.ScanJobID),
			nullableString(file.TagsJSON),
			timestamp,
			timestamp,
		); err != nil {
			return fmt.Errorf("upsert file: %w", err)
		}

		var fileID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, file.Path).Scan(&fileID); err != nil {
			return fmt.Errorf("resolve upserted file id: %w", err)
		}
		if err := UpsertTracksForFile(ctx, tx, fileID, tracks); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit upsert: %w", err)
		}
		stored := *file
		stored.ID = fileID
		result = &stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetFileByID(ctx, result.ID)
}

// TracksForFile returns the file's tracks ordered by index.
func (s *Store) TracksForFile(ctx context.Context, fileID int64) ([]*Track, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE file_id = ? ORDER BY track_index`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track row: %w", err)
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}
