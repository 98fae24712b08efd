package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const planColumns = "id, file_id, file_path, policy_name, policy_version, job_id, actions_json, action_count, requires_remux, status, created_at, updated_at"

func scanPlan(scanner rowScanner) (*Plan, error) {
	var (
		id            string
		fileID        sql.NullInt64
		filePath      sql.NullString
		policyName    sql.NullString
		policyVersion sql.NullString
		jobID         sql.NullString
		actionsJSON   string
		actionCount   int
		requiresRemux int
		status        string
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&fileID,
		&filePath,
		&policyName,
		&policyVersion,
		&jobID,
		&actionsJSON,
		&actionCount,
		&requiresRemux,
		&status,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	plan := &Plan{
		ID:            id,
		FilePath:      filePath.String,
		PolicyName:    policyName.String,
		PolicyVersion: policyVersion.String,
		JobID:         jobID.String,
		ActionsJSON:   actionsJSON,
		ActionCount:   actionCount,
		RequiresRemux: requiresRemux != 0,
		Status:        PlanStatus(status),
	}
	if fileID.Valid {
		v := fileID.Int64
		plan.FileID = &v
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		plan.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		plan.UpdatedAt = updated
	}
	return plan, nil
}

// CreatePlan persists evaluator output in pending status.
func (s *Store) CreatePlan(ctx context.Context, plan *Plan) (*Plan, error) {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.Status == "" {
		plan.Status = PlanPending
	}
	timestamp := nowStamp()
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO plans (
            id, file_id, file_path, policy_name, policy_version, job_id,
            actions_json, action_count, requires_remux, status,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		nullableInt64(plan.FileID),
		nullableString(plan.FilePath),
		nullableString(plan.PolicyName),
		nullableString(plan.PolicyVersion),
		nullableString(plan.JobID),
		plan.ActionsJSON,
		plan.ActionCount,
		boolToInt(plan.RequiresRemux),
		string(plan.Status),
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return s.GetPlan(ctx, plan.ID)
}

// GetPlan fetches a plan by UUID. Returns nil when absent.
func (s *Store) GetPlan(ctx context.Context, id string) (*Plan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id)
	plan, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

// UpdatePlanStatus moves a plan through the approval lifecycle. Transitions
// outside the closed table fail with ErrInvalidPlanTransition; the current
// status is read and the update applied inside one immediate transaction so
// concurrent approvals cannot both succeed.
func (s *Store) UpdatePlanStatus(ctx context.Context, id string, to PlanStatus) error {
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		var current string
		err := conn.QueryRowContext(ctx, `SELECT status FROM plans WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("plan %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("read plan status: %w", err)
		}
		from := PlanStatus(current)
		if !CanTransition(from, to) {
			return invalidTransition(from, to)
		}
		if _, err := conn.ExecContext(
			ctx,
			`UPDATE plans SET status = ?, updated_at = ? WHERE id = ?`,
			string(to),
			nowStamp(),
			id,
		); err != nil {
			return fmt.Errorf("update plan status: %w", err)
		}
		return nil
	})
}

// ListPlans returns plans filtered by status (all when empty), newest first.
func (s *Store) ListPlans(ctx context.Context, status PlanStatus, limit int) ([]*Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan row: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}
