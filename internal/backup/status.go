package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/backupd/internal/model"
)

// StaleAfter is how old the last successful backup may be before a
// container is reported stale.
const StaleAfter = 24 * time.Hour

// DB defines the database operations used by the status tracker.
// *pgxpool.Pool satisfies this interface.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StatusRecorder records one backup outcome per container.
type StatusRecorder interface {
	RecordSuccess(ctx context.Context, containerID, nodeID string, sizeMB float64, remotePath string) error
	RecordFailure(ctx context.Context, containerID, nodeID, errMsg string) error
}

// StatusTracker keeps the latest backup status per container in backup_status.
type StatusTracker struct {
	db  DB
	now func() time.Time
}

// NewStatusTracker creates a StatusTracker.
func NewStatusTracker(db DB) *StatusTracker {
	return &StatusTracker{db: db, now: time.Now}
}

const statusColumns = `container_id, node_id, last_backup_at, last_backup_size_mb, last_backup_path,
	last_backup_success, last_backup_error, total_backups, created_at, updated_at`

// RecordSuccess upserts a successful backup and increments total_backups.
func (s *StatusTracker) RecordSuccess(ctx context.Context, containerID, nodeID string, sizeMB float64, remotePath string) error {
	now := s.now().UTC()
	_, err := s.db.Exec(ctx,
		`INSERT INTO backup_status (`+statusColumns+`)
		 VALUES ($1, $2, $3, $4, $5, true, NULL, 1, $3, $3)
		 ON CONFLICT (container_id) DO UPDATE SET
		   node_id = EXCLUDED.node_id,
		   last_backup_at = EXCLUDED.last_backup_at,
		   last_backup_size_mb = EXCLUDED.last_backup_size_mb,
		   last_backup_path = EXCLUDED.last_backup_path,
		   last_backup_success = true,
		   last_backup_error = NULL,
		   total_backups = backup_status.total_backups + 1,
		   updated_at = EXCLUDED.updated_at`,
		containerID, nodeID, now, sizeMB, remotePath,
	)
	if err != nil {
		return fmt.Errorf("record backup success for %s: %w", containerID, err)
	}
	return nil
}

// RecordFailure upserts a failed attempt. The last successful backup's
// timestamp, size, path and total_backups are left untouched.
func (s *StatusTracker) RecordFailure(ctx context.Context, containerID, nodeID, errMsg string) error {
	now := s.now().UTC()
	_, err := s.db.Exec(ctx,
		`INSERT INTO backup_status (`+statusColumns+`)
		 VALUES ($1, $2, NULL, NULL, NULL, false, $3, 0, $4, $4)
		 ON CONFLICT (container_id) DO UPDATE SET
		   node_id = EXCLUDED.node_id,
		   last_backup_success = false,
		   last_backup_error = EXCLUDED.last_backup_error,
		   updated_at = EXCLUDED.updated_at`,
		containerID, nodeID, errMsg, now,
	)
	if err != nil {
		return fmt.Errorf("record backup failure for %s: %w", containerID, err)
	}
	return nil
}

// Get returns the status of one container.
func (s *StatusTracker) Get(ctx context.Context, containerID string) (*model.BackupStatusEntry, error) {
	row := s.db.QueryRow(ctx, `SELECT `+statusColumns+` FROM backup_status WHERE container_id = $1`, containerID)
	e, err := scanStatus(row)
	if err != nil {
		return nil, fmt.Errorf("get backup status %s: %w", containerID, err)
	}
	e.IsStale = IsStale(e, s.now())
	return &e, nil
}

// ListAll returns every container's status ordered by container id.
func (s *StatusTracker) ListAll(ctx context.Context) ([]model.BackupStatusEntry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+statusColumns+` FROM backup_status ORDER BY container_id`)
	if err != nil {
		return nil, fmt.Errorf("list backup status: %w", err)
	}
	defer rows.Close()

	now := s.now()
	entries := []model.BackupStatusEntry{}
	for rows.Next() {
		e, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup status: %w", err)
		}
		e.IsStale = IsStale(e, now)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup status: %w", err)
	}
	return entries, nil
}

// ListStale returns the entries of ListAll that are stale.
func (s *StatusTracker) ListStale(ctx context.Context) ([]model.BackupStatusEntry, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	stale := []model.BackupStatusEntry{}
	for _, e := range all {
		if e.IsStale {
			stale = append(stale, e)
		}
	}
	return stale, nil
}

// IsStale reports whether e lacks a successful backup within StaleAfter of now.
func IsStale(e model.BackupStatusEntry, now time.Time) bool {
	if !e.LastBackupSuccess || e.LastBackupAt == nil {
		return true
	}
	return now.Sub(*e.LastBackupAt) > StaleAfter
}

func scanStatus(row pgx.Row) (model.BackupStatusEntry, error) {
	var e model.BackupStatusEntry
	err := row.Scan(&e.ContainerID, &e.NodeID, &e.LastBackupAt, &e.LastBackupSizeMB, &e.LastBackupPath,
		&e.LastBackupSuccess, &e.LastBackupError, &e.TotalBackups, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// RecordReport applies exactly one success or failure record per result.
// Every result is attempted; errors are joined.
func RecordReport(ctx context.Context, recorder StatusRecorder, report model.NightlyBackupReport) error {
	var errs []error
	for _, res := range report.Results {
		var err error
		if res.Success {
			err = recorder.RecordSuccess(ctx, res.Container, report.NodeID, res.SizeMB, res.RemotePath)
		} else {
			err = recorder.RecordFailure(ctx, res.Container, report.NodeID, res.Error)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
