package worker_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"textify/internal/entity"
	"textify/internal/repository/postgresql"
	"textify/internal/service"
	"textify/internal/worker"
)

// ---- fakes ----

type fakeJobs struct {
	jobs map[uuid.UUID]*entity.Job

	// GetByID reports ErrNotFound this many times before the row
	// becomes visible, simulating read-after-write lag.
	visibleAfter int
	getCalls     int
}

func (r *fakeJobs) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	r.getCalls++
	if r.getCalls <= r.visibleAfter {
		return nil, postgresql.ErrNotFound
	}
	j, ok := r.jobs[id]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	return j, nil
}

func (r *fakeJobs) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	j, ok := r.jobs[id]
	if !ok {
		return false, postgresql.ErrNotFound
	}
	if j.Status.Terminal() {
		return false, nil
	}
	j.Status = entity.StatusProcessing
	return true, nil
}

func (r *fakeJobs) SetCompleted(ctx context.Context, id uuid.UUID, resultPath string) error {
	j, ok := r.jobs[id]
	if !ok {
		return postgresql.ErrNotFound
	}
	if j.Status == entity.StatusFailed {
		return postgresql.ErrNotFound
	}
	j.Status = entity.StatusCompleted
	j.ResultPath = &resultPath
	j.ErrorMessage = nil
	return nil
}

func (r *fakeJobs) SetFailed(ctx context.Context, id uuid.UUID, errText string) error {
	j, ok := r.jobs[id]
	if !ok {
		return postgresql.ErrNotFound
	}
	if j.Status == entity.StatusCompleted {
		return postgresql.ErrNotFound
	}
	j.Status = entity.StatusFailed
	j.ErrorMessage = &errText
	j.ResultPath = nil
	return nil
}

type fakeDeadLetters struct {
	inserted []entity.DeadLetter
}

func (d *fakeDeadLetters) InsertDeadLetter(ctx context.Context, jobID uuid.UUID, payload []byte, reason string) error {
	d.inserted = append(d.inserted, entity.DeadLetter{JobID: jobID, Payload: payload, Reason: reason})
	return nil
}

type fakeBlob struct {
	objects map[string][]byte
	getErr  error
	putErr  error
}

func (b *fakeBlob) Put(ctx context.Context, location string, data []byte, contentType string) error {
	if b.putErr != nil {
		return b.putErr
	}
	if b.objects == nil {
		b.objects = map[string][]byte{}
	}
	b.objects[location] = data
	return nil
}

func (b *fakeBlob) Get(ctx context.Context, location string) ([]byte, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	data, ok := b.objects[location]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

func (b *fakeBlob) SignedURL(location string, ttl time.Duration) (string, error) {
	return "/files/" + location, nil
}

type fakeEngine struct {
	text  string
	err   error
	calls int
}

func (e *fakeEngine) Extract(ctx context.Context, data []byte, category entity.FileCategory) (string, error) {
	e.calls++
	return e.text, e.err
}

type sleepRecorder struct {
	slept []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return nil
}

// ---- helpers ----

func newJob(id uuid.UUID) *entity.Job {
	return &entity.Job{
		ID:               id,
		OriginalFilename: "scan.png",
		SourcePath:       "uploads/" + id.String() + "/scan.png",
		Category:         entity.CategoryImage,
		ContentType:      "image/png",
		Status:           entity.StatusUploaded,
	}
}

func payloadFor(t *testing.T, job *entity.Job) []byte {
	t.Helper()
	p, err := service.EncodeNotification(service.Notification{
		JobID:          job.ID.String(),
		SourceLocation: job.SourcePath,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return p
}

// ---- tests ----

func TestProcess_CompletesJobWithDeterministicResultPath(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	job := newJob(id)
	repo := &fakeJobs{jobs: map[uuid.UUID]*entity.Job{id: job}}
	blob := &fakeBlob{objects: map[string][]byte{job.SourcePath: []byte("pixels")}}
	engine := &fakeEngine{text: "hello world"}
	sleeps := &sleepRecorder{}
	p := worker.NewProcessor(repo, &fakeDeadLetters{}, blob, engine).WithSleep(sleeps.sleep)

	if err := p.Process(context.Background(), payloadFor(t, job)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if job.Status != entity.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", job.Status)
	}
	want := "processed/" + id.String() + ".txt"
	if job.ResultPath == nil || *job.ResultPath != want {
		t.Fatalf("expected result path %q, got %v", want, job.ResultPath)
	}
	if string(blob.objects[want]) != "hello world" {
		t.Fatalf("result text not uploaded, got %q", blob.objects[want])
	}
	if job.ErrorMessage != nil {
		t.Fatal("completed job must have no error summary")
	}
	if len(sleeps.slept) != 0 {
		t.Fatalf("no backoff expected when the row is visible, slept %v", sleeps.slept)
	}
}

func TestProcess_RetriesLookupWithDoublingBackoff(t *testing.T) {
	id := uuid.New()
	job := newJob(id)
	repo := &fakeJobs{jobs: map[uuid.UUID]*entity.Job{id: job}, visibleAfter: 3}
	blob := &fakeBlob{objects: map[string][]byte{job.SourcePath: []byte("pixels")}}
	sleeps := &sleepRecorder{}
	p := worker.NewProcessor(repo, &fakeDeadLetters{}, blob, &fakeEngine{text: "t"}).WithSleep(sleeps.sleep)

	if err := p.Process(context.Background(), payloadFor(t, job)); err != nil {
		t.Fatalf("expected success on the 4th attempt, got %v", err)
	}

	if repo.getCalls != 4 {
		t.Fatalf("expected 4 lookup attempts, got %d", repo.getCalls)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	if len(sleeps.slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), sleeps.slept)
	}
	for i, d := range want {
		if sleeps.slept[i] != d {
			t.Fatalf("sleep %d: expected %s, got %s", i, d, sleeps.slept[i])
		}
	}
	if job.Status != entity.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", job.Status)
	}
}

func TestProcess_ExhaustedLookupsDeadLetterAndAck(t *testing.T) {
	id := uuid.New()
	job := newJob(id)
	// row never becomes visible
	repo := &fakeJobs{jobs: map[uuid.UUID]*entity.Job{}, visibleAfter: 1000}
	dead := &fakeDeadLetters{}
	sleeps := &sleepRecorder{}
	p := worker.NewProcessor(repo, dead, &fakeBlob{}, &fakeEngine{}).WithSleep(sleeps.sleep)

	err := p.Process(context.Background(), payloadFor(t, job))
	if err != nil {
		t.Fatalf("exhausted lookups must ack, got %v", err)
	}
	if repo.getCalls != 5 {
		t.Fatalf("expected exactly 5 bounded attempts, got %d", repo.getCalls)
	}
	if len(sleeps.slept) != 4 {
		t.Fatalf("expected 4 sleeps between 5 attempts, got %d", len(sleeps.slept))
	}
	if len(dead.inserted) != 1 || dead.inserted[0].JobID != id {
		t.Fatalf("expected a dead letter for %s, got %+v", id, dead.inserted)
	}
}

func TestProcess_DuplicateDeliveryIsHarmless(t *testing.T) {
	id := uuid.New()
	job := newJob(id)
	repo := &fakeJobs{jobs: map[uuid.UUID]*entity.Job{id: job}}
	blob := &fakeBlob{objects: map[string][]byte{job.SourcePath: []byte("pixels")}}
	engine := &fakeEngine{text: "text"}
	p := worker.NewProcessor(repo, &fakeDeadLetters{}, blob, engine).WithSleep((&sleepRecorder{}).sleep)
	payload := payloadFor(t, job)

	if err := p.Process(context.Background(), payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := p.Process(context.Background(), payload); err != nil {
		t.Fatalf("second delivery must ack, got %v", err)
	}

	if engine.calls != 1 {
		t.Fatalf("terminal job must not be re-extracted, extract calls=%d", engine.calls)
	}
	if job.Status != entity.StatusCompleted || job.ResultPath == nil {
		t.Fatalf("terminal state corrupted: status=%s result=%v", job.Status, job.ResultPath)
	}
}

func TestProcess_ExtractionFailureMarksFailedAndNacks(t *testing.T) {
	id := uuid.New()
	job := newJob(id)
	repo := &fakeJobs{jobs: map[uuid.UUID]*entity.Job{id: job}}
	blob := &fakeBlob{objects: map[string][]byte{job.SourcePath: []byte("pixels")}}
	longMsg := strings.Repeat("tesseract exploded ", 30)
	p := worker.NewProcessor(repo, &fakeDeadLetters{}, blob, &fakeEngine{err: errors.New(longMsg)}).
		WithSleep((&sleepRecorder{}).sleep)

	err := p.Process(context.Background(), payloadFor(t, job))
	if err == nil {
		t.Fatal("a failed extraction must surface so the delivery is nacked")
	}

	if job.Status != entity.StatusFailed {
		t.Fatalf("expected FAILED, got %s", job.Status)
	}
	if job.ErrorMessage == nil {
		t.Fatal("failed job must carry an error summary")
	}
	if len(*job.ErrorMessage) > 255 {
		t.Fatalf("error summary must be truncated to 255, got %d", len(*job.ErrorMessage))
	}
	if job.ResultPath != nil {
		t.Fatal("failed job must have no result location")
	}
}

func TestProcess_RepeatedFailureIsIdempotent(t *testing.T) {
	id := uuid.New()
	job := newJob(id)
	repo := &fakeJobs{jobs: map[uuid.UUID]*entity.Job{id: job}}
	blob := &fakeBlob{getErr: errors.New("storage unavailable")}
	p := worker.NewProcessor(repo, &fakeDeadLetters{}, blob, &fakeEngine{}).WithSleep((&sleepRecorder{}).sleep)
	payload := payloadFor(t, job)

	// two deliveries that both reached PROCESSING before either wrote
	// FAILED: the second FAILED write must be a harmless overwrite
	for i := 0; i < 2; i++ {
		job.Status = entity.StatusProcessing
		if err := p.Process(context.Background(), payload); err == nil {
			t.Fatalf("delivery %d: expected error", i+1)
		}
	}

	if job.Status != entity.StatusFailed || job.ErrorMessage == nil {
		t.Fatalf("repeated FAILED writes corrupted the row: status=%s err=%v", job.Status, job.ErrorMessage)
	}
}

func TestProcess_UndecodablePayloadDeadLettersAndAcks(t *testing.T) {
	repo := &fakeJobs{jobs: map[uuid.UUID]*entity.Job{}}
	dead := &fakeDeadLetters{}
	p := worker.NewProcessor(repo, dead, &fakeBlob{}, &fakeEngine{}).WithSleep((&sleepRecorder{}).sleep)

	// an undecodable payload can never succeed: a nack here would cycle
	// it through the queue forever, so it must ack with a durable trace
	if err := p.Process(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("undecodable payload must ack, got %v", err)
	}
	if len(dead.inserted) != 1 {
		t.Fatalf("expected a dead letter, got %d", len(dead.inserted))
	}
	if string(dead.inserted[0].Payload) != "not json" {
		t.Fatalf("dead letter must keep the raw payload, got %q", dead.inserted[0].Payload)
	}
	if repo.getCalls != 0 {
		t.Fatal("malformed payload must not reach the repository")
	}
}

func TestProcess_BadJobIDDeadLettersAndAcks(t *testing.T) {
	repo := &fakeJobs{jobs: map[uuid.UUID]*entity.Job{}}
	dead := &fakeDeadLetters{}
	p := worker.NewProcessor(repo, dead, &fakeBlob{}, &fakeEngine{}).WithSleep((&sleepRecorder{}).sleep)

	if err := p.Process(context.Background(), []byte(`{"jobId":"not-a-uuid","sourceLocation":"x"}`)); err != nil {
		t.Fatalf("unparsable job id must ack, got %v", err)
	}
	if len(dead.inserted) != 1 {
		t.Fatalf("expected a dead letter, got %d", len(dead.inserted))
	}
	if repo.getCalls != 0 {
		t.Fatal("unparsable job id must not reach the repository")
	}
}
