package workflow

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"vpo/internal/config"
	"vpo/internal/executor"
	"vpo/internal/store"
)

// Handler processes one claimed job end-to-end. Implementations must honor
// ctx cancellation at their progress checkpoints.
type Handler interface {
	Type() store.JobType
	Handle(ctx context.Context, job *store.Job) error
}

// Manager runs the worker pool and the supervisor.
type Manager struct {
	cfg      *config.Config
	store    *store.Store
	logger   *slog.Logger
	handlers map[store.JobType]Handler

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewManager wires the standard handler set.
func NewManager(cfg *config.Config, st *store.Store, exec *executor.Executor, prober executor.Prober, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    st,
		logger:   logger,
		handlers: make(map[store.JobType]Handler),
	}
	m.register(&scanHandler{store: st, prober: prober, logger: logger})
	m.register(&pruneHandler{store: st, logger: logger})
	m.register(&processHandler{jobType: store.JobProcess, store: st, exec: exec, logger: logger})
	m.register(&processHandler{jobType: store.JobApply, store: st, exec: exec, logger: logger})
	m.register(&processHandler{jobType: store.JobTranscode, store: st, exec: exec, logger: logger, transcodeOnly: true})
	m.register(&moveHandler{store: st, logger: logger})
	return m
}

func (m *Manager) register(h Handler) {
	m.handlers[h.Type()] = h
}

// Start launches the workers and the supervisor. It returns immediately.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	workers := m.cfg.Workers.Count
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func(id int) {
			defer m.wg.Done()
			m.workerLoop(runCtx, id)
		}(i)
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.superviseLoop(runCtx)
	}()
	m.logger.Info("workflow started", slog.Int("workers", workers))
}

// Stop cancels all loops and waits for in-flight jobs to wind down.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *Manager) pollInterval() time.Duration {
	if m.cfg.Workers.QueuePollInterval > 0 {
		return time.Duration(m.cfg.Workers.QueuePollInterval) * time.Second
	}
	return 2 * time.Second
}

func (m *Manager) errorRetryInterval() time.Duration {
	if m.cfg.Workers.ErrorRetryInterval > 0 {
		return time.Duration(m.cfg.Workers.ErrorRetryInterval) * time.Second
	}
	return 5 * time.Second
}

// heartbeatInterval is capped at the 10 second liveness cadence.
func (m *Manager) heartbeatInterval() time.Duration {
	interval := time.Duration(m.cfg.Workers.HeartbeatInterval) * time.Second
	if interval <= 0 || interval > 10*time.Second {
		interval = 10 * time.Second
	}
	return interval
}

func (m *Manager) heartbeatTimeout() time.Duration {
	if m.cfg.Workers.HeartbeatTimeout > 0 {
		return time.Duration(m.cfg.Workers.HeartbeatTimeout) * time.Second
	}
	return 60 * time.Second
}

func (m *Manager) workerLoop(ctx context.Context, id int) {
	logger := m.logger.With(slog.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := m.store.ClaimNextJob(ctx, os.Getpid())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("claim failed", slog.Any("error", err))
			if !sleepCtx(ctx, m.errorRetryInterval()) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, m.pollInterval()) {
				return
			}
			continue
		}
		m.runJob(ctx, logger, job)
	}
}

// runJob owns one claimed job: heartbeat upkeep, cancellation watch,
// handler dispatch, and the terminal transition.
func (m *Manager) runJob(ctx context.Context, logger *slog.Logger, job *store.Job) {
	logger = logger.With(slog.String("job", job.ID), slog.String("type", string(job.Type)))
	logger.Info("job started", slog.String("path", job.FilePath))

	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()

	cancelled := false
	var watchWG sync.WaitGroup
	watchWG.Add(1)
	go func() {
		defer watchWG.Done()
		ticker := time.NewTicker(m.heartbeatInterval())
		defer ticker.Stop()
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
			}
			if err := m.store.UpdateHeartbeat(jobCtx, job.ID); err != nil && jobCtx.Err() == nil {
				logger.Warn("heartbeat update failed", slog.Any("error", err))
			}
			status, err := m.store.JobStatusByID(jobCtx, job.ID)
			if err == nil && status == store.JobCancelled {
				cancelled = true
				cancelJob()
				return
			}
		}
	}()

	handler, ok := m.handlers[job.Type]
	var err error
	if !ok {
		err = errUnknownJobType(job.Type)
	} else {
		err = handler.Handle(jobCtx, job)
	}
	cancelJob()
	watchWG.Wait()

	switch {
	case cancelled:
		// CancelJob already stamped the terminal state; the worker only
		// abandons and cleans up.
		logger.Info("job cancelled")
	case err != nil:
		logger.Error("job failed", slog.Any("error", err))
		if failErr := m.store.FailJob(context.WithoutCancel(ctx), job.ID, err.Error()); failErr != nil {
			logger.Error("failed to record job failure", slog.Any("error", failErr))
		}
	default:
		if doneErr := m.store.CompleteJob(context.WithoutCancel(ctx), job.ID, job.OutputPath, ""); doneErr != nil {
			logger.Error("failed to record job completion", slog.Any("error", doneErr))
		} else {
			logger.Info("job completed")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
