package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"vpo/internal/config"
	"vpo/internal/deps"
	"vpo/internal/store"
	"vpo/internal/workflow"
)

// Daemon owns the background worker pool and enforces single-instance
// execution through a lock file next to the logs.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	workflow *workflow.Manager

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status is a point-in-time snapshot of the daemon's state.
type Status struct {
	Running      bool
	Workers      int
	DatabasePath string
	LockFilePath string
	QueueCounts  map[store.JobStatus]int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, wf *workflow.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || wf == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "vpo.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, verifies the required external tools,
// and launches the workflow manager.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vpo daemon instance is already running")
	}

	avail := deps.Probe(d.cfg)
	if missing := avail.MissingRequired(); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, status := range missing {
			names = append(names, status.Name)
		}
		_ = d.lock.Unlock()
		return fmt.Errorf("required tools missing: %s", strings.Join(names, ", "))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.workflow.Start(runCtx)
	d.running.Store(true)
	d.logger.Info("daemon started", slog.String("lock", d.lockPath))
	return nil
}

// Stop stops the worker pool and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", slog.Any("error", err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Status reports daemon state plus the current queue breakdown.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	counts, err := d.store.QueueCounts(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		Workers:      d.cfg.Workers.Count,
		DatabasePath: d.cfg.Paths.DatabasePath,
		LockFilePath: d.lockPath,
		QueueCounts:  counts,
	}, nil
}
