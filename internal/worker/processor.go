package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"textify/internal/entity"
	"textify/internal/repository/postgresql"
	"textify/internal/service"
	"textify/internal/storage"
)

type JobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	SetCompleted(ctx context.Context, id uuid.UUID, resultPath string) error
	SetFailed(ctx context.Context, id uuid.UUID, errText string) error
}

type DeadLetterStore interface {
	InsertDeadLetter(ctx context.Context, jobID uuid.UUID, payload []byte, reason string) error
}

type Extractor interface {
	Extract(ctx context.Context, data []byte, category entity.FileCategory) (string, error)
}

const (
	lookupAttempts = 5
	initialBackoff = 1 * time.Second
	maxErrorLen    = 255
)

type Processor struct {
	repo        JobRepo
	deadLetters DeadLetterStore
	blob        storage.Store
	engine      Extractor
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewProcessor(repo JobRepo, deadLetters DeadLetterStore, blob storage.Store, engine Extractor) *Processor {
	return &Processor{
		repo:        repo,
		deadLetters: deadLetters,
		blob:        blob,
		engine:      engine,
		sleep:       sleepCtx,
	}
}

// WithSleep swaps the backoff sleep, so tests can drive the retry curve
// without wall-clock delays.
func (p *Processor) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Processor {
	p.sleep = fn
	return p
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ResultLocation is the blob location of a job's extracted text, derived
// from the job ID alone so redeliveries overwrite rather than accumulate.
func ResultLocation(id uuid.UUID) string {
	return "processed/" + id.String() + ".txt"
}

// Process handles one transport delivery. A nil return tells the pool to
// ack; an error return tells it to nack so the transport may redeliver.
func (p *Processor) Process(ctx context.Context, payload []byte) error {
	start := time.Now()

	note, err := service.DecodeNotification(payload)
	if err != nil {
		return p.poison(ctx, uuid.Nil, payload, fmt.Sprintf("undecodable notification: %v", err))
	}
	id, err := uuid.Parse(note.JobID)
	if err != nil {
		return p.poison(ctx, uuid.Nil, payload, fmt.Sprintf("bad job id %q: %v", note.JobID, err))
	}

	job, err := p.lookupWithRetry(ctx, id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			// The publish raced ahead of a transaction that never became
			// visible. Redelivery cannot help, so keep a durable trace
			// and ack.
			log.Printf("[worker] job_id=%s lookup exhausted after %d attempts, dead-lettering", id, lookupAttempts)
			if dlErr := p.deadLetters.InsertDeadLetter(ctx, id, payload, "job not visible after lookup retries"); dlErr != nil {
				log.Printf("[worker] job_id=%s dead_letter error=%v", id, dlErr)
			}
			return nil
		}
		return err
	}

	started, err := p.repo.MarkProcessing(ctx, id)
	if err != nil {
		return err
	}
	if !started {
		// already terminal: a stale duplicate delivery, nothing to redo
		log.Printf("[worker] job_id=%s already terminal, skipping duplicate delivery", id)
		return nil
	}
	log.Printf("[worker] job_id=%s category=%s status=PROCESSING", id, job.Category)

	data, err := p.blob.Get(ctx, job.SourcePath)
	if err != nil {
		return p.fail(ctx, id, start, fmt.Errorf("download source: %w", err))
	}

	text, err := p.engine.Extract(ctx, data, job.Category)
	if err != nil {
		return p.fail(ctx, id, start, fmt.Errorf("extract text: %w", err))
	}

	resultPath := ResultLocation(id)
	if err := p.blob.Put(ctx, resultPath, []byte(text), "text/plain"); err != nil {
		return p.fail(ctx, id, start, fmt.Errorf("upload result: %w", err))
	}

	if err := p.repo.SetCompleted(ctx, id, resultPath); err != nil {
		return err
	}

	log.Printf("[worker] job_id=%s status=COMPLETED result=%s text_len=%d duration_ms=%d",
		id, resultPath, len(text), time.Since(start).Milliseconds())
	return nil
}

// lookupWithRetry tolerates the read-after-write race between a committed
// job row and its delivered notification: bounded attempts, doubling
// backoff, retrying only the lookup.
func (p *Processor) lookupWithRetry(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	backoff := initialBackoff

	for attempt := 1; ; attempt++ {
		job, err := p.repo.GetByID(ctx, id)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, postgresql.ErrNotFound) || attempt >= lookupAttempts {
			return nil, err
		}

		log.Printf("[worker] job_id=%s not visible on attempt %d, retrying in %s", id, attempt, backoff)
		if err := p.sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
	}
}

// poison dead-letters a payload that can never be processed and acks it.
// A nack would push the same bytes straight back onto the queue and the
// redelivery loop would never terminate.
func (p *Processor) poison(ctx context.Context, id uuid.UUID, payload []byte, reason string) error {
	log.Printf("[worker] poison delivery, dead-lettering: %s", reason)
	if err := p.deadLetters.InsertDeadLetter(ctx, id, payload, reason); err != nil {
		log.Printf("[worker] dead_letter error=%v", err)
	}
	return nil
}

// fail records the terminal FAILED state with a bounded summary and
// returns the cause so the pool nacks; the transport's redelivery policy
// decides whether the job gets another attempt.
func (p *Processor) fail(ctx context.Context, id uuid.UUID, start time.Time, cause error) error {
	msg := cause.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	if err := p.repo.SetFailed(ctx, id, msg); err != nil {
		log.Printf("[worker] job_id=%s set_failed error=%v", id, err)
	}
	log.Printf("[worker] job_id=%s status=FAILED duration_ms=%d error=%s",
		id, time.Since(start).Milliseconds(), msg)
	return cause
}
