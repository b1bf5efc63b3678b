package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/google/uuid"
)

// Timestamps are stored as unix milliseconds, departments comma-joined.

const jobColumns = `id, filename, mode, departments, status,
	total_rows, imported_rows, updated_rows, skipped_rows, filtered_rows, errors,
	error_message, started_at, completed_at, heartbeat_at`

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// CreateJob inserts a running job. Zero timestamps are filled with now.
func (s *Store) CreateJob(ctx context.Context, job *core.ImportJob) error {
	now := time.Now().UTC()
	if job.StartedAt.IsZero() {
		job.StartedAt = now
	}
	if job.HeartbeatAt.IsZero() {
		job.HeartbeatAt = job.StartedAt
	}
	if job.Status == "" {
		job.Status = core.StatusRunning
	}

	var departments sql.NullString
	if len(job.Departments) > 0 {
		departments = sql.NullString{String: strings.Join(job.Departments, ","), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sirene_imports (id, filename, mode, departments, status, started_at, heartbeat_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.Filename, string(job.Mode), departments, string(job.Status),
		millis(job.StartedAt), millis(job.HeartbeatAt), millis(now),
	)
	if err != nil {
		return fmt.Errorf("create import job: %w", err)
	}
	return nil
}

// CheckpointJob stores running counts and refreshes the heartbeat.
func (s *Store) CheckpointJob(ctx context.Context, id uuid.UUID, c core.JobCounts) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sirene_imports
		SET total_rows = ?, imported_rows = ?, updated_rows = ?,
		    skipped_rows = ?, filtered_rows = ?, errors = ?, heartbeat_at = ?
		WHERE id = ? AND status = 'running'`,
		c.TotalRows, c.Imported, c.Updated, c.Skipped, c.Filtered, c.Errors,
		millis(time.Now()), id.String(),
	)
	if err != nil {
		return fmt.Errorf("checkpoint import job: %w", err)
	}
	return s.expectRunning(ctx, res, id)
}

// HeartbeatJob refreshes the heartbeat only.
func (s *Store) HeartbeatJob(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sirene_imports SET heartbeat_at = ? WHERE id = ? AND status = 'running'`,
		millis(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("heartbeat import job: %w", err)
	}
	return s.expectRunning(ctx, res, id)
}

// FinalizeJob sets the terminal status, final counts and completion time.
func (s *Store) FinalizeJob(ctx context.Context, id uuid.UUID, status core.JobStatus, c core.JobCounts, message string) error {
	now := millis(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE sirene_imports
		SET status = ?, total_rows = ?, imported_rows = ?, updated_rows = ?,
		    skipped_rows = ?, filtered_rows = ?, errors = ?,
		    error_message = NULLIF(?, ''), completed_at = ?, heartbeat_at = ?
		WHERE id = ? AND status = 'running'`,
		string(status), c.TotalRows, c.Imported, c.Updated, c.Skipped, c.Filtered, c.Errors,
		message, now, now, id.String(),
	)
	if err != nil {
		return fmt.Errorf("finalize import job: %w", err)
	}
	return s.expectRunning(ctx, res, id)
}

// expectRunning turns a no-op update into ErrJobNotRunning or
// ErrImportNotFound.
func (s *Store) expectRunning(ctx context.Context, res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", core.ErrJobNotRunning, id)
}

// GetJob returns core.ErrImportNotFound for unknown ids.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*core.ImportJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM sirene_imports WHERE id = ?`, id.String())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrImportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get import job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]core.ImportJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM sirene_imports ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list import jobs: %w", err)
	}
	defer rows.Close()

	var jobs []core.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// MarkStaleJobs moves running jobs whose heartbeat is older than cutoff to
// abandoned.
func (s *Store) MarkStaleJobs(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sirene_imports
		SET status = 'abandoned', error_message = ?, completed_at = ?
		WHERE status = 'running' AND heartbeat_at < ?`,
		message, millis(time.Now()), millis(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("mark stale import jobs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*core.ImportJob, error) {
	var (
		job                    core.ImportJob
		id, mode, status       string
		departments, message   sql.NullString
		startedAt, heartbeatAt int64
		completedAt            sql.NullInt64
	)
	err := row.Scan(
		&id, &job.Filename, &mode, &departments, &status,
		&job.TotalRows, &job.Imported, &job.Updated, &job.Skipped, &job.Filtered, &job.Errors,
		&message, &startedAt, &completedAt, &heartbeatAt,
	)
	if err != nil {
		return nil, err
	}

	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", id, err)
	}
	job.Mode = core.ImportMode(mode)
	job.Status = core.JobStatus(status)
	if departments.Valid && departments.String != "" {
		job.Departments = strings.Split(departments.String, ",")
	}
	job.ErrorMessage = message.String
	job.StartedAt = fromMillis(startedAt)
	job.HeartbeatAt = fromMillis(heartbeatAt)
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		job.CompletedAt = &t
	}
	return &job, nil
}
