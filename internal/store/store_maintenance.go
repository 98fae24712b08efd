package store

import (
	"context"
	"fmt"
	"strings"
)

// IntegrityReport is the structured result of an integrity check.
type IntegrityReport struct {
	OK                   bool
	IntegrityViolations  []string
	ForeignKeyViolations []string
}

// RunIntegrityCheck issues the integrity and foreign-key check pragmas and
// collects any violations.
func (s *Store) RunIntegrityCheck(ctx context.Context) (IntegrityReport, error) {
	ctx = ensureContext(ctx)
	report := IntegrityReport{OK: true}

	rows, err := s.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return report, fmt.Errorf("integrity check: %w", err)
	}
	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			rows.Close()
			return report, fmt.Errorf("scan integrity result: %w", err)
		}
		if !strings.EqualFold(result, "ok") {
			report.OK = false
			report.IntegrityViolations = append(report.IntegrityViolations, result)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return report, err
	}
	rows.Close()

	fkRows, err := s.db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return report, fmt.Errorf("foreign key check: %w", err)
	}
	defer fkRows.Close()

	for fkRows.Next() {
		var (
			table  string
			rowID  any
			parent string
			fkID   int
		)
		if err := fkRows.Scan(&table, &rowID, &parent, &fkID); err != nil {
			return report, fmt.Errorf("scan foreign key violation: %w", err)
		}
		report.OK = false
		report.ForeignKeyViolations = append(report.ForeignKeyViolations,
			fmt.Sprintf("%s row %v references missing %s", table, rowID, parent))
	}
	return report, fkRows.Err()
}

// OptimizeResult reports the outcome of a maintenance pass.
type OptimizeResult struct {
	DryRun bool
	// ReclaimableBytes is the free-list estimate; exact only for dry runs
	// taken before the vacuum.
	ReclaimableBytes int64
	Vacuumed         bool
	Analyzed         bool
}

// RunOptimize reclaims free space and refreshes planner statistics. In dry
// run it only reports the current free-list pages times the page size as
// the reclaimable estimate.
func (s *Store) RunOptimize(ctx context.Context, dryRun bool) (OptimizeResult, error) {
	ctx = ensureContext(ctx)
	result := OptimizeResult{DryRun: dryRun}

	var freePages, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA freelist_count").Scan(&freePages); err != nil {
		return result, fmt.Errorf("freelist count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return result, fmt.Errorf("page size: %w", err)
	}
	result.ReclaimableBytes = freePages * pageSize

	if dryRun {
		return result, nil
	}

	// VACUUM refuses to run inside a transaction, so it needs a dedicated
	// connection with nothing pending.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return result, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	_, _ = conn.ExecContext(ctx, "ROLLBACK")
	if _, err := conn.ExecContext(ctx, "VACUUM"); err != nil {
		return result, fmt.Errorf("vacuum: %w", err)
	}
	result.Vacuumed = true

	if _, err := conn.ExecContext(ctx, "ANALYZE"); err != nil {
		return result, fmt.Errorf("analyze: %w", err)
	}
	result.Analyzed = true
	return result, nil
}
