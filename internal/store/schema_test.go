package store_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"vpo/internal/store"
)

// buildV2Database writes a database shaped like schema version 2: the jobs
// table already has batch_id and log_path but still lacks the priority
// range CHECK, so out-of-range priorities exist on disk.
func buildV2Database(t *testing.T, path string) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE schema_meta (version INTEGER NOT NULL)`,
		`INSERT INTO schema_meta (version) VALUES (2)`,
		`CREATE TABLE files (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            path TEXT NOT NULL UNIQUE,
            size INTEGER NOT NULL DEFAULT 0,
            modified_at TEXT, content_hash TEXT, container TEXT,
            scan_status TEXT NOT NULL DEFAULT 'pending',
            scan_error TEXT, scanned_at TEXT, scan_job_id TEXT, tags_json TEXT,
            created_at TEXT NOT NULL, updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE jobs (
            id TEXT PRIMARY KEY,
            job_type TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'queued',
            priority INTEGER NOT NULL DEFAULT 500,
            file_id INTEGER REFERENCES files(id) ON DELETE SET NULL,
            file_path TEXT, policy_name TEXT, policy_json TEXT,
            progress_percent REAL NOT NULL DEFAULT 0, progress_json TEXT,
            created_at TEXT NOT NULL, started_at TEXT, completed_at TEXT,
            worker_pid INTEGER, worker_heartbeat TEXT,
            output_path TEXT, backup_path TEXT, error_message TEXT,
            origin TEXT NOT NULL DEFAULT 'cli', batch_id TEXT, log_path TEXT
        )`,
		`INSERT INTO jobs (id, job_type, status, priority, created_at)
            VALUES ('aaaa', 'scan', 'queued', 5000, '2026-01-01T00:00:00Z')`,
		`INSERT INTO jobs (id, job_type, status, priority, created_at)
            VALUES ('bbbb', 'scan', 'queued', -3, '2026-01-01T00:00:00Z')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("build v2 db: %v", err)
		}
	}
}

func TestMigrationClampsPriority(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")
	buildV2Database(t, dbPath)

	st, err := store.OpenPath(dbPath)
	if err != nil {
		t.Fatalf("open migrated: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	high, err := st.GetJob(ctx, "aaaa")
	if err != nil || high == nil {
		t.Fatalf("get high: %v %v", high, err)
	}
	if high.Priority != 1000 {
		t.Errorf("priority 5000 clamped to %d, want 1000", high.Priority)
	}

	low, err := st.GetJob(ctx, "bbbb")
	if err != nil || low == nil {
		t.Fatalf("get low: %v %v", low, err)
	}
	if low.Priority != 0 {
		t.Errorf("priority -3 clamped to %d, want 0", low.Priority)
	}

	// The recreated table enforces the range going forward.
	if _, err := st.InsertJob(ctx, &store.Job{Type: store.JobScan, Priority: 2000}); err == nil {
		t.Error("post-migration insert bypassed priority validation")
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lib.db")

	first, err := store.OpenPath(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := first.InsertJob(context.Background(), &store.Job{Type: store.JobScan, Priority: 500}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	first.Close()

	second, err := store.OpenPath(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	counts, err := second.QueueCounts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[store.JobQueued] != 1 {
		t.Errorf("queued count = %d after reopen", counts[store.JobQueued])
	}
}
