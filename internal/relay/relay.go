// Package relay bridges the transactional outbox and the message
// transport: it publishes committed outbox entries and deletes them only
// once the transport accepted the publish.
package relay

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"textify/internal/entity"
)

type OutboxRepo interface {
	ListPending(ctx context.Context, limit int) ([]*entity.OutboxEntry, error)
	Delete(ctx context.Context, jobID uuid.UUID) error
}

type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

type Relay struct {
	outbox    OutboxRepo
	transport Publisher
	interval  time.Duration
	batchSize int
}

func New(outbox OutboxRepo, transport Publisher, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{
		outbox:    outbox,
		transport: transport,
		interval:  interval,
		batchSize: 100,
	}
}

// Run scans on a fixed interval until the context is cancelled.
func (r *Relay) Run(ctx context.Context) {
	log.Printf("[relay] started interval=%s batch=%d", r.interval, r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[relay] stopped")
			return
		case <-ticker.C:
			n, err := r.RelayOnce(ctx)
			if err != nil {
				log.Printf("[relay] scan error=%v", err)
			}
			if n > 0 {
				log.Printf("[relay] published=%d", n)
			}
		}
	}
}

// RelayOnce publishes pending entries in creation order. An entry is
// deleted only after a successful publish; a publish failure leaves it in
// place, making the next scan the retry. A crash between publish and
// delete yields a duplicate delivery, which consumers must tolerate.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.ListPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, e := range entries {
		if err := r.transport.Publish(ctx, e.Payload); err != nil {
			// entry stays pending; retried on the next scan
			log.Printf("[relay] job_id=%s publish error=%v", e.JobID, err)
			return published, err
		}
		if err := r.outbox.Delete(ctx, e.JobID); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}
