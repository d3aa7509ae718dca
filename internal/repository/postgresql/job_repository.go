package postgresql

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"textify/internal/entity"
)

var ErrNotFound = errors.New("not found")

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// CreateWithOutbox inserts the job row and its outbox entry in one
// transaction. Either both are durable or neither is: the outbox entry is
// what the relay later turns into a transport publish, so a committed job
// is always announced and an aborted one never is.
func (r *JobRepository) CreateWithOutbox(ctx context.Context, job *entity.Job, payload []byte) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insertJob = `
INSERT INTO processing_jobs
	(id, user_id, original_filename, source_path, file_category, content_type, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now());
`
	if _, err := tx.Exec(ctx, insertJob,
		job.ID, job.UserID, job.OriginalFilename, job.SourcePath,
		string(job.Category), job.ContentType, string(job.Status),
	); err != nil {
		return err
	}

	const insertOutbox = `
INSERT INTO job_outbox (job_id, user_id, payload, created_at)
VALUES ($1, $2, $3, now());
`
	if _, err := tx.Exec(ctx, insertOutbox, job.ID, job.UserID, payload); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const jobColumns = `
id, user_id, original_filename, source_path, result_path,
file_category, content_type, status, error_message, created_at, updated_at`

func scanJob(row pgx.Row) (*entity.Job, error) {
	var (
		job      entity.Job
		category string
		status   string
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.OriginalFilename,
		&job.SourcePath,
		&job.ResultPath,
		&category,
		&job.ContentType,
		&status,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	job.Category = entity.FileCategory(category)
	job.Status = entity.JobStatus(status)
	return &job, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM processing_jobs WHERE id = $1;`
	return scanJob(r.pool.QueryRow(ctx, q, id))
}

// MarkProcessing moves the job into PROCESSING. Re-entering PROCESSING is
// allowed (a redelivered notification restarts extraction), terminal rows
// are left untouched. Returns (false, nil) when the row exists but is
// terminal, so the caller can treat the delivery as a stale duplicate.
func (r *JobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `
UPDATE processing_jobs
SET status='PROCESSING', updated_at=now()
WHERE id=$1 AND status IN ('UPLOADED','PROCESSING');
`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// distinguish "terminal" from "missing"
	var status string
	if err := r.pool.QueryRow(ctx, `SELECT status FROM processing_jobs WHERE id=$1;`, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return false, nil
}

// SetCompleted records the terminal success state. result_path is set and
// error_message cleared in the same write, keeping the status/result
// invariant. A row already COMPLETED by a concurrent duplicate delivery is
// left as is; a FAILED row is never resurrected.
func (r *JobRepository) SetCompleted(ctx context.Context, id uuid.UUID, resultPath string) error {
	const q = `
UPDATE processing_jobs
SET status='COMPLETED', result_path=$2, error_message=NULL, updated_at=now()
WHERE id=$1 AND status IN ('PROCESSING','COMPLETED');
`
	tag, err := r.pool.Exec(ctx, q, id, resultPath)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFailed records the terminal failure state. Repeated FAILED writes
// (one per transport redelivery until the transport gives up) overwrite
// the summary but never corrupt the state; COMPLETED is never downgraded.
func (r *JobRepository) SetFailed(ctx context.Context, id uuid.UUID, errText string) error {
	const q = `
UPDATE processing_jobs
SET status='FAILED', error_message=$2, result_path=NULL, updated_at=now()
WHERE id=$1 AND status IN ('UPLOADED','PROCESSING','FAILED');
`
	tag, err := r.pool.Exec(ctx, q, id, errText)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetLatestForUser returns the user's most recently created job.
func (r *JobRepository) GetLatestForUser(ctx context.Context, userID string) (*entity.Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM processing_jobs
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT 1;
`
	return scanJob(r.pool.QueryRow(ctx, q, userID))
}

func (r *JobRepository) ListRecent(ctx context.Context, page, size int) ([]*entity.Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM processing_jobs
ORDER BY created_at DESC
LIMIT $1 OFFSET $2;
`
	rows, err := r.pool.Query(ctx, q, size, page*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
