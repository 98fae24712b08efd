package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"vpo/internal/logging"
	"vpo/internal/store"
	"vpo/internal/testsupport"
)

type fakeHandler struct {
	jobType store.JobType
	fn      func(ctx context.Context, job *store.Job) error
}

func (h *fakeHandler) Type() store.JobType { return h.jobType }

func (h *fakeHandler) Handle(ctx context.Context, job *store.Job) error {
	return h.fn(ctx, job)
}

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	return NewManager(cfg, st, nil, nil, logging.NewNop()), st
}

func waitForStatus(t *testing.T, st *store.Store, id string, want store.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		status, err := st.JobStatusByID(context.Background(), id)
		if err != nil {
			t.Fatalf("job status: %v", err)
		}
		if status == want {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", id, want)
}

func TestWorkerCompletesClaimedJob(t *testing.T) {
	m, st := newTestManager(t)
	done := make(chan string, 1)
	m.register(&fakeHandler{jobType: store.JobProcess, fn: func(ctx context.Context, job *store.Job) error {
		job.OutputPath = "/library/out.mkv"
		done <- job.ID
		return nil
	}})

	job := testsupport.SeedJob(t, st, store.Job{Type: store.JobProcess, FilePath: "/library/in.mkv", Priority: store.PriorityDefault})

	m.Start(context.Background())
	defer m.Stop()

	select {
	case id := <-done:
		if id != job.ID {
			t.Fatalf("handler saw job %s, want %s", id, job.ID)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("handler never ran")
	}
	waitForStatus(t, st, job.ID, store.JobCompleted)

	stored, err := st.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.OutputPath != "/library/out.mkv" {
		t.Fatalf("output path = %q, want handler result persisted", stored.OutputPath)
	}
	if stored.ProgressPercent != 100 {
		t.Fatalf("progress = %v, want 100", stored.ProgressPercent)
	}
}

func TestWorkerRecordsHandlerFailure(t *testing.T) {
	m, st := newTestManager(t)
	m.register(&fakeHandler{jobType: store.JobProcess, fn: func(ctx context.Context, job *store.Job) error {
		return errors.New("ffmpeg exploded")
	}})

	job := testsupport.SeedJob(t, st, store.Job{Type: store.JobProcess, FilePath: "/library/in.mkv", Priority: store.PriorityDefault})

	m.Start(context.Background())
	defer m.Stop()

	waitForStatus(t, st, job.ID, store.JobFailed)

	stored, err := st.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.ErrorMessage != "ffmpeg exploded" {
		t.Fatalf("error message = %q", stored.ErrorMessage)
	}
}

func TestWorkerFailsUnknownJobType(t *testing.T) {
	m, st := newTestManager(t)
	// Registered handlers require an executor; strip them so this type is
	// genuinely unhandled.
	delete(m.handlers, store.JobMove)

	job := testsupport.SeedJob(t, st, store.Job{Type: store.JobMove, FilePath: "/library/in.mkv", OutputPath: "/library/out.mkv", Priority: store.PriorityDefault})

	m.Start(context.Background())
	defer m.Stop()

	waitForStatus(t, st, job.ID, store.JobFailed)
}

func TestCancellationAbandonsRunningJob(t *testing.T) {
	m, st := newTestManager(t)
	running := make(chan struct{})
	m.register(&fakeHandler{jobType: store.JobProcess, fn: func(ctx context.Context, job *store.Job) error {
		close(running)
		<-ctx.Done()
		return ctx.Err()
	}})

	job := testsupport.SeedJob(t, st, store.Job{Type: store.JobProcess, FilePath: "/library/in.mkv", Priority: store.PriorityDefault})

	m.Start(context.Background())
	defer m.Stop()

	select {
	case <-running:
	case <-time.After(15 * time.Second):
		t.Fatal("job never started")
	}

	ok, err := st.CancelJob(context.Background(), job.ID)
	if err != nil || !ok {
		t.Fatalf("cancel job: ok=%v err=%v", ok, err)
	}

	waitForStatus(t, st, job.ID, store.JobCancelled)
	// Give the worker time to observe the cancellation and wind down; the
	// terminal state must not be overwritten by a failure record.
	time.Sleep(2 * time.Second)

	stored, err := st.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != store.JobCancelled {
		t.Fatalf("status = %s, want cancelled to stick", stored.Status)
	}
	if stored.ErrorMessage != "" {
		t.Fatalf("error message = %q, want none for a cancelled job", stored.ErrorMessage)
	}
}

func TestSupervisorReapsDeadWorker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workers.HeartbeatTimeout = 1
	st := testsupport.MustOpenStore(t, cfg)
	m := NewManager(cfg, st, nil, nil, logging.NewNop())

	origAlive := processAlive
	processAlive = func(pid int) bool { return false }
	defer func() { processAlive = origAlive }()

	testsupport.SeedJob(t, st, store.Job{Type: store.JobProcess, FilePath: "/library/in.mkv", Priority: store.PriorityDefault})
	claimed, err := st.ClaimNextJob(context.Background(), 999999)
	if err != nil || claimed == nil {
		t.Fatalf("claim: job=%v err=%v", claimed, err)
	}

	time.Sleep(1200 * time.Millisecond)
	m.reapStale(context.Background())

	status, err := st.JobStatusByID(context.Background(), claimed.ID)
	if err != nil {
		t.Fatalf("job status: %v", err)
	}
	if status != store.JobFailed {
		t.Fatalf("status = %s, want failed after reap", status)
	}
	stored, err := st.GetJob(context.Background(), claimed.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.ErrorMessage == "" {
		t.Fatal("reaped job should record why it failed")
	}
}

func TestSupervisorSparesLiveWorker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workers.HeartbeatTimeout = 1
	st := testsupport.MustOpenStore(t, cfg)
	m := NewManager(cfg, st, nil, nil, logging.NewNop())

	origAlive := processAlive
	processAlive = func(pid int) bool { return true }
	defer func() { processAlive = origAlive }()

	testsupport.SeedJob(t, st, store.Job{Type: store.JobProcess, FilePath: "/library/in.mkv", Priority: store.PriorityDefault})
	claimed, err := st.ClaimNextJob(context.Background(), 4242)
	if err != nil || claimed == nil {
		t.Fatalf("claim: job=%v err=%v", claimed, err)
	}

	time.Sleep(1200 * time.Millisecond)
	m.reapStale(context.Background())

	status, err := st.JobStatusByID(context.Background(), claimed.ID)
	if err != nil {
		t.Fatalf("job status: %v", err)
	}
	if status != store.JobRunning {
		t.Fatalf("status = %s, want a slow but live worker left alone", status)
	}
}

func TestRetentionRemovesOldTerminalJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workers.JobRetentionDays = 1
	st := testsupport.MustOpenStore(t, cfg)
	m := NewManager(cfg, st, nil, nil, logging.NewNop())

	job := testsupport.SeedJob(t, st, store.Job{Type: store.JobProcess, FilePath: "/library/old.mkv", Priority: store.PriorityDefault})
	if _, err := st.ClaimNextJob(context.Background(), 1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := st.CompleteJob(context.Background(), job.ID, "", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// A just-completed job is inside the retention window.
	m.enforceRetention(context.Background())
	if stored, err := st.GetJob(context.Background(), job.ID); err != nil || stored == nil {
		t.Fatalf("fresh terminal job removed early: job=%v err=%v", stored, err)
	}

	deleted, err := st.DeleteOldJobs(context.Background(), time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("delete old jobs: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1 once past the cutoff", deleted)
	}
}
