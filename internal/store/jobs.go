package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/weftlabs/weft/internal/engine"
)

// PutJob inserts or replaces one job record. Called once when the job is
// admitted (PENDING) and once when it reaches a terminal state.
func (s *Store) PutJob(ctx context.Context, job *engine.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (id, source_id, collection, status,
		                       inserted, updated, deleted, kept, skipped,
		                       error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status       = excluded.status,
			inserted     = excluded.inserted,
			updated      = excluded.updated,
			deleted      = excluded.deleted,
			kept         = excluded.kept,
			skipped      = excluded.skipped,
			error        = excluded.error,
			started_at   = excluded.started_at,
			completed_at = excluded.completed_at
	`,
		job.ID, job.Scope.SourceID, job.Scope.Collection, string(job.Status),
		job.Counters.Inserted, job.Counters.Updated, job.Counters.Deleted,
		job.Counters.Kept, job.Counters.Skipped,
		nullString(job.Error), nullTime(job.StartedAt), nullTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("put job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads one job by ID, with ok=false when it does not exist.
func (s *Store) GetJob(ctx context.Context, id string) (*engine.Job, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, collection, status,
		       inserted, updated, deleted, kept, skipped,
		       error, started_at, completed_at
		FROM sync_jobs WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, true, nil
}

// ListJobs returns the jobs for one scope, most recent first.
func (s *Store) ListJobs(ctx context.Context, scope engine.Scope, limit int) ([]*engine.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, collection, status,
		       inserted, updated, deleted, kept, skipped,
		       error, started_at, completed_at
		FROM sync_jobs
		WHERE source_id = ? AND collection = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, scope.SourceID, scope.Collection, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*engine.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*engine.Job, error) {
	var (
		job                  engine.Job
		status               string
		errMsg               sql.NullString
		startedAt, completed sql.NullString
	)
	if err := row.Scan(
		&job.ID, &job.Scope.SourceID, &job.Scope.Collection, &status,
		&job.Counters.Inserted, &job.Counters.Updated, &job.Counters.Deleted,
		&job.Counters.Kept, &job.Counters.Skipped,
		&errMsg, &startedAt, &completed,
	); err != nil {
		return nil, err
	}

	job.Status = engine.Status(status)
	job.Error = errMsg.String
	var err error
	if job.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("started_at: %w", err)
	}
	if job.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, fmt.Errorf("completed_at: %w", err)
	}
	return &job, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
