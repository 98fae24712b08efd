package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// processAlive reports whether the given PID still exists. EPERM means the
// process exists but belongs to another user.
var processAlive = func(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// superviseLoop reaps running jobs whose heartbeat went stale and whose
// worker process is gone, and enforces terminal-job retention.
func (m *Manager) superviseLoop(ctx context.Context) {
	ticker := time.NewTicker(m.heartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		m.reapStale(ctx)
		m.enforceRetention(ctx)
	}
}

func (m *Manager) reapStale(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.heartbeatTimeout())
	stale, err := m.store.StaleRunningJobs(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("stale job query failed", slog.Any("error", err))
		}
		return
	}
	for _, job := range stale {
		if job.WorkerPID != nil && processAlive(*job.WorkerPID) {
			// The worker exists but stopped heartbeating; it may be wedged
			// on slow IO. Reaping it would race a live process, so only
			// surface the condition.
			m.logger.Warn("job heartbeat stale but worker alive",
				slog.String("job", job.ID), slog.Int("pid", *job.WorkerPID))
			continue
		}
		message := "worker died without completing the job"
		if job.WorkerPID != nil {
			message = fmt.Sprintf("worker pid %d died without completing the job", *job.WorkerPID)
		}
		reaped, err := m.store.ReapJob(ctx, job.ID, message)
		if err != nil {
			m.logger.Warn("reap failed", slog.String("job", job.ID), slog.Any("error", err))
			continue
		}
		if reaped {
			m.logger.Info("reaped orphaned job", slog.String("job", job.ID),
				slog.String("type", string(job.Type)))
		}
	}
}

func (m *Manager) enforceRetention(ctx context.Context) {
	days := m.cfg.Workers.JobRetentionDays
	if days <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	deleted, err := m.store.DeleteOldJobs(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("job retention sweep failed", slog.Any("error", err))
		}
		return
	}
	if deleted > 0 {
		m.logger.Info("retention removed old jobs", slog.Int64("count", deleted))
	}
}
