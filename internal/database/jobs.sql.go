// internal/database/jobs.sql.go
package database

import (
	"context"

	"github.com/google/uuid"
)

const backgroundJobColumns = `id, job_type, scope, status, started_at, completed_at, error, items_processed, items_skipped, items_failed`

const createJob = `-- name: CreateJob :one
INSERT INTO background_jobs (id, job_type, scope, status)
VALUES ($1, $2, $3, 'running')
RETURNING ` + backgroundJobColumns

type CreateJobParams struct {
	ID      uuid.UUID
	JobType string
	Scope   string
}

// CreateJob fails with a unique violation while another job of the same type is running.
func (q *Queries) CreateJob(ctx context.Context, arg CreateJobParams) (BackgroundJob, error) {
	row := q.db.QueryRow(ctx, createJob, arg.ID, arg.JobType, arg.Scope)
	var i BackgroundJob
	err := row.Scan(
		&i.ID,
		&i.JobType,
		&i.Scope,
		&i.Status,
		&i.StartedAt,
		&i.CompletedAt,
		&i.Error,
		&i.ItemsProcessed,
		&i.ItemsSkipped,
		&i.ItemsFailed,
	)
	return i, err
}

const finishJob = `-- name: FinishJob :exec
UPDATE background_jobs
SET status = $2, error = $3, items_processed = $4, items_skipped = $5, items_failed = $6, completed_at = NOW()
WHERE id = $1 AND status = 'running'
`

type FinishJobParams struct {
	ID             uuid.UUID
	Status         string
	Error          *string
	ItemsProcessed int32
	ItemsSkipped   int32
	ItemsFailed    int32
}

func (q *Queries) FinishJob(ctx context.Context, arg FinishJobParams) error {
	_, err := q.db.Exec(ctx, finishJob,
		arg.ID,
		arg.Status,
		arg.Error,
		arg.ItemsProcessed,
		arg.ItemsSkipped,
		arg.ItemsFailed,
	)
	return err
}

const getJob = `-- name: GetJob :one
SELECT ` + backgroundJobColumns + `
FROM background_jobs
WHERE id = $1
`

func (q *Queries) GetJob(ctx context.Context, id uuid.UUID) (BackgroundJob, error) {
	row := q.db.QueryRow(ctx, getJob, id)
	var i BackgroundJob
	err := row.Scan(
		&i.ID,
		&i.JobType,
		&i.Scope,
		&i.Status,
		&i.StartedAt,
		&i.CompletedAt,
		&i.Error,
		&i.ItemsProcessed,
		&i.ItemsSkipped,
		&i.ItemsFailed,
	)
	return i, err
}

const listRecentJobs = `-- name: ListRecentJobs :many
SELECT ` + backgroundJobColumns + `
FROM background_jobs
ORDER BY started_at DESC
LIMIT $1
`

func (q *Queries) ListRecentJobs(ctx context.Context, limit int32) ([]BackgroundJob, error) {
	rows, err := q.db.Query(ctx, listRecentJobs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []BackgroundJob{}
	for rows.Next() {
		var i BackgroundJob
		if err := rows.Scan(
			&i.ID,
			&i.JobType,
			&i.Scope,
			&i.Status,
			&i.StartedAt,
			&i.CompletedAt,
			&i.Error,
			&i.ItemsProcessed,
			&i.ItemsSkipped,
			&i.ItemsFailed,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const failRunningJobs = `-- name: FailRunningJobs :execrows
UPDATE background_jobs
SET status = 'failed', error = $1, completed_at = NOW()
WHERE status = 'running'
`

func (q *Queries) FailRunningJobs(ctx context.Context, reason string) (int64, error) {
	result, err := q.db.Exec(ctx, failRunningJobs, reason)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
