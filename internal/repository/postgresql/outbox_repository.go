package postgresql

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"textify/internal/entity"
)

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// ListPending returns unrelayed entries in creation order. An entry stays
// pending until Delete confirms the transport accepted its publish, so its
// mere presence is the retry signal after a failed or crashed relay pass.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]*entity.OutboxEntry, error) {
	const q = `
SELECT job_id, user_id, payload, created_at
FROM job_outbox
ORDER BY created_at ASC
LIMIT $1;
`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*entity.OutboxEntry
	for rows.Next() {
		var e entity.OutboxEntry
		if err := rows.Scan(&e.JobID, &e.UserID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (r *OutboxRepository) Delete(ctx context.Context, jobID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM job_outbox WHERE job_id = $1;`, jobID)
	return err
}

// InsertDeadLetter keeps a durable trace of a notification whose job row
// never became visible within the consumer's retry budget.
func (r *OutboxRepository) InsertDeadLetter(ctx context.Context, jobID uuid.UUID, payload []byte, reason string) error {
	const q = `
INSERT INTO dead_letters (job_id, payload, reason, created_at)
VALUES ($1, $2, $3, now());
`
	_, err := r.pool.Exec(ctx, q, jobID, payload, reason)
	return err
}
