package testsupport

import (
	"context"
	"testing"

	"vpo/internal/config"
	"vpo/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedFile catalogs a file with the given tracks and returns the stored row.
func SeedFile(t testing.TB, st *store.Store, path string, tracks []store.Track) *store.File {
	t.Helper()

	file, err := st.UpsertFileWithTracks(context.Background(), &store.File{
		Path:       path,
		Size:       1 << 20,
		Container:  "matroska",
		ScanStatus: store.ScanOK,
	}, tracks)
	if err != nil {
		t.Fatalf("seed file %s: %v", path, err)
	}
	return file
}

// SeedJob enqueues a job and returns the stored row.
func SeedJob(t testing.TB, st *store.Store, job store.Job) *store.Job {
	t.Helper()

	stored, err := st.InsertJob(context.Background(), &job)
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return stored
}
