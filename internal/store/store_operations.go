package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const operationColumns = "id, file_path, status, actions_json, started_at, completed_at, backup_path"

func scanOperation(scanner rowScanner) (*Operation, error) {
	var (
		id           string
		filePath     string
		status       string
		actionsJSON  sql.NullString
		startedRaw   string
		completedRaw sql.NullString
		backupPath   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&filePath,
		&status,
		&actionsJSON,
		&startedRaw,
		&completedRaw,
		&backupPath,
	); err != nil {
		return nil, err
	}

	op := &Operation{
		ID:          id,
		FilePath:    filePath,
		Status:      OperationStatus(status),
		ActionsJSON: actionsJSON.String,
		CompletedAt: timeFromNull(completedRaw),
		BackupPath:  backupPath.String,
	}
	if started, err := parseTimeString(startedRaw); err == nil {
		op.StartedAt = started
	}
	return op, nil
}

// BeginOperation records the start of a policy application against a file.
func (s *Store) BeginOperation(ctx context.Context, filePath, actionsJSON, backupPath string) (*Operation, error) {
	id := uuid.NewString()
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO operations (id, file_path, status, actions_json, started_at, backup_path)
        VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		filePath,
		string(OpInProgress),
		nullableString(actionsJSON),
		nowStamp(),
		nullableString(backupPath),
	); err != nil {
		return nil, fmt.Errorf("begin operation: %w", err)
	}
	return s.GetOperation(ctx, id)
}

// FinishOperation stamps the terminal status and completion time of an
// audit entry.
func (s *Store) FinishOperation(ctx context.Context, id string, status OperationStatus) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE operations SET status = ?, completed_at = ? WHERE id = ?`,
		string(status),
		nowStamp(),
		id,
	); err != nil {
		return fmt.Errorf("finish operation: %w", err)
	}
	return nil
}

// GetOperation fetches an audit entry by UUID. Returns nil when absent.
func (s *Store) GetOperation(ctx context.Context, id string) (*Operation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = ?`, id)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get operation: %w", err)
	}
	return op, nil
}

// OperationsForFile returns the audit trail for a file, newest first.
func (s *Store) OperationsForFile(ctx context.Context, filePath string, limit int) ([]*Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE file_path = ? ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, filePath)
	if err != nil {
		return nil, fmt.Errorf("operations for file: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operation row: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
