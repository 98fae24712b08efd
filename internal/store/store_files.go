package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const fileColumns = "id, path, size, modified_at, content_hash, container, scan_status, scan_error, scanned_at, scan_job_id, tags_json, created_at, updated_at"

func scanFile(scanner rowScanner) (*File, error) {
	var (
		id          int64
		path        string
		size        int64
		modifiedRaw sql.NullString
		contentHash sql.NullString
		container   sql.NullString
		scanStatus  string
		scanError   sql.NullString
		scannedRaw  sql.NullString
		scanJobID   sql.NullString
		tagsJSON    sql.NullString
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id,
		&path,
		&size,
		&modifiedRaw,
		&contentHash,
		&container,
		&scanStatus,
		&scanError,
		&scannedRaw,
		&scanJobID,
		&tagsJSON,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	file := &File{
		ID:          id,
		Path:        path,
		Size:        size,
		ModifiedAt:  timeFromNull(modifiedRaw),
		ContentHash: contentHash.String,
		Container:   container.String,
		ScanStatus:  ScanStatus(scanStatus),
		ScanError:   scanError.String,
		ScannedAt:   timeFromNull(scannedRaw),
		ScanJobID:   scanJobID.String,
		TagsJSON:    tagsJSON.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		file.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		file.UpdatedAt = updated
	}
	return file, nil
}

// InsertFile inserts a new catalog row and returns it with its assigned ID.
func (s *Store) InsertFile(ctx context.Context, file *File) (*File, error) {
	timestamp := nowStamp()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO files (
            path, size, modified_at, content_hash, container,
            scan_status, scan_error, scanned_at, scan_job_id, tags_json,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
	)
	if err != nil {
		return nil, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetFileByID(ctx, id)
}

// UpsertFileByPath inserts or updates the catalog row for a path. The path
// is the natural key; an existing row keeps its ID and created_at.
func (s *Store) UpsertFileByPath(ctx context.Context, file *File) (*File, error) {
	timestamp := nowStamp()
	if err := s.execWithoutResultRetry(
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
		return nil, fmt.Errorf("upsert file: %w", err)
	}
	return s.GetFileByPath(ctx, file.Path)
}

// GetFileByID fetches a catalog row by identifier. Returns nil when absent.
func (s *Store) GetFileByID(ctx context.Context, id int64) (*File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// GetFileByPath fetches a catalog row by canonical path. Returns nil when
// absent.
func (s *Store) GetFileByPath(ctx context.Context, path string) (*File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE path = ?`, path)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file by path: %w", err)
	}
	return file, nil
}

// DeleteFile removes a catalog row. Tracks and stats cascade.
func (s *Store) DeleteFile(ctx context.Context, id int64) error {
	if err := s.execWithoutResultRetry(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// UpdateFilePath renames a catalog row after a container change moved the
// file on disk.
func (s *Store) UpdateFilePath(ctx context.Context, id int64, newPath string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE files SET path = ?, updated_at = ? WHERE id = ?`,
		newPath,
		nowStamp(),
		id,
	); err != nil {
		return fmt.Errorf("update file path: %w", err)
	}
	return nil
}

// ListFilesUnderPrefix returns catalog rows whose path starts with prefix,
// ordered by path. Used by prune to walk a subtree.
func (s *Store) ListFilesUnderPrefix(ctx context.Context, prefix string) ([]*File, error) {
	pattern := escapeLike(prefix) + "%"
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+fileColumns+` FROM files WHERE path LIKE ? ESCAPE '\' ORDER BY path`,
		pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// CountFiles returns the number of catalog rows.
func (s *Store) CountFiles(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM files`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return count, nil
}
