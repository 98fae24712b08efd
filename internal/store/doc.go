// Package store is the single source of truth for persisted state: the
// library catalog (files, tracks), the job queue, plans, the operations
// audit log, plugin caches, and processing statistics. All state lives in
// one embedded SQLite database opened in WAL mode.
package store
