package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const jobColumns = `id, filename, mode, departments, status,
	total_rows, imported_rows, updated_rows, skipped_rows, filtered_rows, errors,
	error_message, started_at, completed_at, heartbeat_at`

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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sirene_imports (id, filename, mode, departments, status, started_at, heartbeat_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.Filename, string(job.Mode), job.Departments, string(job.Status),
		job.StartedAt, job.HeartbeatAt,
	)
	if err != nil {
		return fmt.Errorf("create import job: %w", err)
	}
	return nil
}

// CheckpointJob stores running counts and refreshes the heartbeat.
func (s *Store) CheckpointJob(ctx context.Context, id uuid.UUID, c core.JobCounts) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sirene_imports
		SET total_rows = $2, imported_rows = $3, updated_rows = $4,
		    skipped_rows = $5, filtered_rows = $6, errors = $7, heartbeat_at = now()
		WHERE id = $1 AND status = 'running'`,
		id, c.TotalRows, c.Imported, c.Updated, c.Skipped, c.Filtered, c.Errors,
	)
	if err != nil {
		return fmt.Errorf("checkpoint import job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.notRunning(ctx, id)
	}
	return nil
}

// HeartbeatJob refreshes the heartbeat only.
func (s *Store) HeartbeatJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sirene_imports SET heartbeat_at = now() WHERE id = $1 AND status = 'running'`, id)
	if err != nil {
		return fmt.Errorf("heartbeat import job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.notRunning(ctx, id)
	}
	return nil
}

// FinalizeJob sets the terminal status, final counts and completion time.
func (s *Store) FinalizeJob(ctx context.Context, id uuid.UUID, status core.JobStatus, c core.JobCounts, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sirene_imports
		SET status = $2, total_rows = $3, imported_rows = $4, updated_rows = $5,
		    skipped_rows = $6, filtered_rows = $7, errors = $8,
		    error_message = NULLIF($9, ''), completed_at = now(), heartbeat_at = now()
		WHERE id = $1 AND status = 'running'`,
		id, string(status), c.TotalRows, c.Imported, c.Updated, c.Skipped, c.Filtered, c.Errors, message,
	)
	if err != nil {
		return fmt.Errorf("finalize import job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.notRunning(ctx, id)
	}
	return nil
}

// notRunning tells an unknown job from one that already left running.
func (s *Store) notRunning(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetJob(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", core.ErrJobNotRunning, id)
}

// GetJob returns core.ErrImportNotFound for unknown ids.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*core.ImportJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM sirene_imports WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrImportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get import job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]core.ImportJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM sirene_imports ORDER BY started_at DESC, created_at DESC LIMIT $1`, limit)
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
	tag, err := s.pool.Exec(ctx, `
		UPDATE sirene_imports
		SET status = 'abandoned', error_message = $2, completed_at = now()
		WHERE status = 'running' AND heartbeat_at < $1`,
		cutoff, message,
	)
	if err != nil {
		return 0, fmt.Errorf("mark stale import jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*core.ImportJob, error) {
	var (
		job         core.ImportJob
		mode        string
		status      string
		message     pgtype.Text
		completedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&job.ID, &job.Filename, &mode, &job.Departments, &status,
		&job.TotalRows, &job.Imported, &job.Updated, &job.Skipped, &job.Filtered, &job.Errors,
		&message, &job.StartedAt, &completedAt, &job.HeartbeatAt,
	)
	if err != nil {
		return nil, err
	}
	job.Mode = core.ImportMode(mode)
	job.Status = core.JobStatus(status)
	job.ErrorMessage = message.String
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}
