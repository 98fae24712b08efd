package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const jobColumns = "id, job_type, status, priority, file_id, file_path, policy_name, policy_json, progress_percent, progress_json, created_at, started_at, completed_at, worker_pid, worker_heartbeat, output_path, backup_path, error_message, origin, batch_id, log_path"

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		id           string
		jobType      string
		status       string
		priority     int
		fileID       sql.NullInt64
		filePath     sql.NullString
		policyName   sql.NullString
		policyJSON   sql.NullString
		progressPct  float64
		progressJSON sql.NullString
		createdRaw   string
		startedRaw   sql.NullString
		completedRaw sql.NullString
		workerPID    sql.NullInt64
		heartbeatRaw sql.NullString
		outputPath   sql.NullString
		backupPath   sql.NullString
		errorMessage sql.NullString
		origin       string
		batchID      sql.NullString
		logPath      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobType,
		&status,
		&priority,
		&fileID,
		&filePath,
		&policyName,
		&policyJSON,
		&progressPct,
		&progressJSON,
		&createdRaw,
		&startedRaw,
		&completedRaw,
		&workerPID,
		&heartbeatRaw,
		&outputPath,
		&backupPath,
		&errorMessage,
		&origin,
		&batchID,
		&logPath,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		Type:            JobType(jobType),
		Status:          JobStatus(status),
		Priority:        priority,
		FilePath:        filePath.String,
		PolicyName:      policyName.String,
		PolicyJSON:      policyJSON.String,
		ProgressPercent: progressPct,
		ProgressJSON:    progressJSON.String,
		StartedAt:       timeFromNull(startedRaw),
		CompletedAt:     timeFromNull(completedRaw),
		WorkerHeartbeat: timeFromNull(heartbeatRaw),
		OutputPath:      outputPath.String,
		BackupPath:      backupPath.String,
		ErrorMessage:    errorMessage.String,
		Origin:          JobOrigin(origin),
		BatchID:         batchID.String,
		LogPath:         logPath.String,
	}
	if fileID.Valid {
		v := fileID.Int64
		job.FileID = &v
	}
	if workerPID.Valid {
		pid := int(workerPID.Int64)
		job.WorkerPID = &pid
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	return job, nil
}

// InsertJob enqueues a new job. When the job targets a file, enqueue is
// refused with ErrDuplicateJob if that file already has a queued or running
// job; the check and the insert share one immediate transaction so two
// enqueuers cannot race past each other.
func (s *Store) InsertJob(ctx context.Context, job *Job) (*Job, error) {
	if !ValidJobType(job.Type) {
		return nil, fmt.Errorf("insert job: unknown job type %q", job.Type)
	}
	if job.Priority < PriorityMin || job.Priority > PriorityMax {
		return nil, fmt.Errorf("insert job: priority %d outside %d..%d", job.Priority, PriorityMin, PriorityMax)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = JobQueued
	}
	if job.Origin == "" {
		job.Origin = OriginCLI
	}

	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		if job.FilePath != "" {
			var active int
			err := conn.QueryRowContext(
				ctx,
				`SELECT COUNT(1) FROM jobs WHERE file_path = ? AND status IN (?, ?)`,
				job.FilePath, JobQueued, JobRunning,
			).Scan(&active)
			if err != nil {
				return fmt.Errorf("check active jobs: %w", err)
			}
			if active > 0 {
				return fmt.Errorf("%w: %s", ErrDuplicateJob, job.FilePath)
			}
		}

		_, err := conn.ExecContext(
			ctx,
			`INSERT INTO jobs (
                id, job_type, status, priority, file_id, file_path,
                policy_name, policy_json, progress_percent, progress_json,
                created_at, origin, batch_id, log_path
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID,
			string(job.Type),
			string(job.Status),
			job.Priority,
			nullableInt64(job.FileID),
			nullableString(job.FilePath),
			nullableString(job.PolicyName),
			nullableString(job.PolicyJSON),
			job.ProgressPercent,
			nullableString(job.ProgressJSON),
			nowStamp(),
			string(job.Origin),
			nullableString(job.BatchID),
			nullableString(job.LogPath),
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, job.ID)
}

// ClaimNextJob atomically claims the most urgent queued job for a worker:
// lowest priority value first, oldest first within a priority. The claim
// stamps the worker PID and an initial heartbeat inside one immediate
// transaction, so no two workers can claim the same job. Returns nil when
// the queue is empty.
func (s *Store) ClaimNextJob(ctx context.Context, workerPID int) (*Job, error) {
	var claimedID string
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(
			ctx,
			`SELECT id FROM jobs WHERE status = ? ORDER BY priority ASC, created_at ASC LIMIT 1`,
			JobQueued,
		)
		if err := row.Scan(&claimedID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				claimedID = ""
				return nil
			}
			return fmt.Errorf("select next job: %w", err)
		}

		now := nowStamp()
		if _, err := conn.ExecContext(
			ctx,
			`UPDATE jobs SET status = ?, started_at = ?, worker_pid = ?, worker_heartbeat = ? WHERE id = ?`,
			JobRunning, now, workerPID, now, claimedID,
		); err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimedID == "" {
		return nil, nil
	}
	return s.GetJob(ctx, claimedID)
}

// GetJob fetches a job by UUID. Returns nil when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// CompleteJob transitions a running job to completed, recording output and
// backup paths and clearing the worker claim.
func (s *Store) CompleteJob(ctx context.Context, id, outputPath, backupPath string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET status = ?, completed_at = ?, progress_percent = 100,
            output_path = ?, backup_path = ?, worker_pid = NULL
        WHERE id = ?`,
		JobCompleted,
		nowStamp(),
		nullableString(outputPath),
		nullableString(backupPath),
		id,
	); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// FailJob transitions a job to failed with an error message.
func (s *Store) FailJob(ctx context.Context, id, message string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET status = ?, completed_at = ?, error_message = ?, worker_pid = NULL WHERE id = ?`,
		JobFailed,
		nowStamp(),
		nullableString(message),
		id,
	); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// CancelJob marks a queued or running job cancelled. A running worker
// observes the new status at its next progress checkpoint and stops there;
// cancellation is cooperative, never preemptive.
func (s *Store) CancelJob(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, completed_at = ?, worker_pid = NULL WHERE id = ? AND status IN (?, ?)`,
		JobCancelled,
		nowStamp(),
		id,
		JobQueued,
		JobRunning,
	)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateJobProgress records progress percent and the type-specific progress
// blob for a running job.
func (s *Store) UpdateJobProgress(ctx context.Context, id string, percent float64, progressJSON string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET progress_percent = ?, progress_json = ? WHERE id = ?`,
		percent,
		nullableString(progressJSON),
		id,
	); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the worker heartbeat for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET worker_heartbeat = ? WHERE id = ? AND status = ?`,
		nowStamp(),
		id,
		JobRunning,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// JobStatusByID returns just the status column, cheap enough for workers to
// poll at progress checkpoints.
func (s *Store) JobStatusByID(ctx context.Context, id string) (JobStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("job %s not found", id)
	}
	if err != nil {
		return "", fmt.Errorf("job status: %w", err)
	}
	return JobStatus(status), nil
}

// StaleRunningJobs returns running jobs whose heartbeat is older than
// cutoff. The supervisor decides per job whether the worker process is
// actually dead before requeueing.
func (s *Store) StaleRunningJobs(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
        WHERE status = ? AND (worker_heartbeat IS NULL OR worker_heartbeat < ?)`,
		JobRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ReapJob fails a stale running job whose worker is gone. Only rows still
// marked running move, so a worker that finished between the stale query
// and the reap is left alone.
func (s *Store) ReapJob(ctx context.Context, id, message string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, completed_at = ?, error_message = ?, worker_pid = NULL
        WHERE id = ? AND status = ?`,
		JobFailed,
		nowStamp(),
		nullableString(message),
		id,
		JobRunning,
	)
	if err != nil {
		return false, fmt.Errorf("reap job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RetryFailedJobs moves failed jobs back to queued. With no IDs, all failed
// jobs are retried.
func (s *Store) RetryFailedJobs(ctx context.Context, ids ...string) (int64, error) {
	query := `UPDATE jobs SET status = ?, started_at = NULL, completed_at = NULL,
        worker_pid = NULL, worker_heartbeat = NULL, error_message = NULL,
        progress_percent = 0, progress_json = NULL
    WHERE status = ?`
	args := []any{JobQueued, JobFailed}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// DeleteOldJobs removes terminal jobs completed before cutoff. Returns the
// number of rows removed.
func (s *Store) DeleteOldJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		JobCompleted,
		JobFailed,
		JobCancelled,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("delete old jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearTerminalJobs removes all terminal jobs regardless of age.
func (s *Store) ClearTerminalJobs(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE status IN (?, ?, ?)`,
		JobCompleted,
		JobFailed,
		JobCancelled,
	)
	if err != nil {
		return 0, fmt.Errorf("clear terminal jobs: %w", err)
	}
	return res.RowsAffected()
}

// QueueCounts returns a count of jobs grouped by status.
func (s *Store) QueueCounts(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// JobFilter narrows a paginated job listing. Zero values mean "no filter".
type JobFilter struct {
	Statuses      []JobStatus
	Types         []JobType
	PathContains  string
	BatchID       string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	SortColumn    string
	SortDesc      bool
	Limit         int
	Offset        int
}

// sortColumns is the whitelist of user-selectable sort keys. duration is
// synthesized from started_at/completed_at and sorts NULLs (still-running
// jobs) last regardless of direction.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"job_type":   "job_type",
	"status":     "status",
	"file_path":  "file_path",
	"duration":   "(julianday(completed_at) - julianday(started_at)) * 86400.0",
}

// ListJobs returns a filtered, sorted page of jobs plus the unpaginated
// total matching the filter.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]*Job, int, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		where = append(where, `status IN (`+makePlaceholders(len(filter.Statuses))+`)`)
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if len(filter.Types) > 0 {
		where = append(where, `job_type IN (`+makePlaceholders(len(filter.Types))+`)`)
		for _, jobType := range filter.Types {
			args = append(args, string(jobType))
		}
	}
	if filter.PathContains != "" {
		where = append(where, `file_path LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(filter.PathContains)+"%")
	}
	if filter.BatchID != "" {
		where = append(where, `batch_id = ?`)
		args = append(args, filter.BatchID)
	}
	if filter.CreatedAfter != nil {
		where = append(where, `created_at >= ?`)
		args = append(args, filter.CreatedAfter.UTC().Format(time.RFC3339Nano))
	}
	if filter.CreatedBefore != nil {
		where = append(where, `created_at < ?`)
		args = append(args, filter.CreatedBefore.UTC().Format(time.RFC3339Nano))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs`+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	sortExpr, ok := sortColumns[filter.SortColumn]
	if filter.SortColumn == "" {
		sortExpr, ok = sortColumns["created_at"], true
	}
	if !ok {
		return nil, 0, fmt.Errorf("list jobs: unsortable column %q", filter.SortColumn)
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	orderClause := " ORDER BY " + sortExpr + " " + direction
	if filter.SortColumn == "duration" {
		orderClause = " ORDER BY CASE WHEN completed_at IS NULL OR started_at IS NULL THEN 1 ELSE 0 END, " +
			sortExpr + " " + direction
	}

	query := `SELECT ` + jobColumns + ` FROM jobs` + whereClause + orderClause
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}
