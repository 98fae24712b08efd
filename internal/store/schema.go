package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. New databases are created at
// this version; older databases are walked forward one migration at a time.
const schemaVersion = 3

type migrationFunc func(ctx context.Context, tx *sql.Tx) error

// migrations[v] migrates a database at version v+1 to version v+2. Index 0
// is unused because version 1 is the oldest schema ever shipped.
var migrations = []migrationFunc{
	nil,
	migrateV1toV2,
	migrateV2toV3,
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_meta'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_meta table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_meta LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, schemaVersion)
	}

	for v := version; v < schemaVersion; v++ {
		if err := s.runMigration(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_meta (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// runMigration applies the migration from version `from` to `from+1` inside
// a single transaction and bumps the recorded version on success. Foreign
// keys are suspended on the migration connection because table-recreate
// migrations drop and rename tables other tables reference.
func (s *Store) runMigration(ctx context.Context, from int) error {
	if from < 1 || from >= len(migrations) || migrations[from] == nil {
		return fmt.Errorf("no migration registered from version %d", from)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("suspend foreign keys: %w", err)
	}
	defer func() { _, _ = conn.ExecContext(ctx, "PRAGMA foreign_keys = ON") }()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := migrations[from](ctx, tx); err != nil {
		return fmt.Errorf("migrate v%d to v%d: %w", from, from+1, err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE schema_meta SET version = ?", from+1); err != nil {
		return fmt.Errorf("record migrated version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration v%d to v%d: %w", from, from+1, err)
	}
	return nil
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			typeStr string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("scan table info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func tableSQL(ctx context.Context, tx *sql.Tx, table string) (string, error) {
	var ddl sql.NullString
	err := tx.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type='table' AND name=?", table,
	).Scan(&ddl)
	if err != nil {
		return "", fmt.Errorf("read ddl for %s: %w", table, err)
	}
	return ddl.String, nil
}

// migrateV1toV2 adds the batch grouping and per-job log file columns to
// jobs. Guarded per column so re-running against a half-migrated database
// is harmless.
func migrateV1toV2(ctx context.Context, tx *sql.Tx) error {
	additions := []struct {
		column string
		ddl    string
	}{
		{"batch_id", "ALTER TABLE jobs ADD COLUMN batch_id TEXT"},
		{"log_path", "ALTER TABLE jobs ADD COLUMN log_path TEXT"},
	}
	for _, add := range additions {
		exists, err := columnExists(ctx, tx, "jobs", add.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := tx.ExecContext(ctx, add.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", add.column, err)
		}
	}
	return nil
}

// migrateV2toV3 tightens the priority CHECK on jobs. SQLite cannot alter a
// CHECK in place, so the table is recreated and rows copied across with
// out-of-range priorities clamped into 0..1000.
func migrateV2toV3(ctx context.Context, tx *sql.Tx) error {
	ddl, err := tableSQL(ctx, tx, "jobs")
	if err != nil {
		return err
	}
	if strings.Contains(ddl, "priority BETWEEN 0 AND 1000") {
		return nil
	}

	stmts := []string{
		`CREATE TABLE jobs_new (
            id TEXT PRIMARY KEY,
            job_type TEXT NOT NULL
                CHECK (job_type IN ('scan', 'apply', 'transcode', 'move', 'process', 'prune')),
            status TEXT NOT NULL DEFAULT 'queued'
                CHECK (status IN ('queued', 'running', 'completed', 'failed', 'cancelled')),
            priority INTEGER NOT NULL DEFAULT 500 CHECK (priority BETWEEN 0 AND 1000),
            file_id INTEGER REFERENCES files(id) ON DELETE SET NULL,
            file_path TEXT,
            policy_name TEXT,
            policy_json TEXT,
            progress_percent REAL NOT NULL DEFAULT 0
                CHECK (progress_percent BETWEEN 0 AND 100),
            progress_json TEXT,
            created_at TEXT NOT NULL,
            started_at TEXT,
            completed_at TEXT,
            worker_pid INTEGER,
            worker_heartbeat TEXT,
            output_path TEXT,
            backup_path TEXT,
            error_message TEXT,
            origin TEXT NOT NULL DEFAULT 'cli' CHECK (origin IN ('cli', 'daemon')),
            batch_id TEXT,
            log_path TEXT
        )`,
		`INSERT INTO jobs_new
            SELECT id, job_type, status, MIN(MAX(priority, 0), 1000), file_id, file_path,
                   policy_name, policy_json, progress_percent, progress_json,
                   created_at, started_at, completed_at, worker_pid, worker_heartbeat,
                   output_path, backup_path, error_message, origin, batch_id, log_path
            FROM jobs`,
		`DROP TABLE jobs`,
		`ALTER TABLE jobs_new RENAME TO jobs`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, priority, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_file_path ON jobs(file_path)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("recreate jobs table: %w", err)
		}
	}
	return nil
}
