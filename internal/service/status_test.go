package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"textify/internal/entity"
	"textify/internal/repository/postgresql"
	"textify/internal/service"
)

type fakeReader struct {
	jobs   map[uuid.UUID]*entity.Job
	recent []*entity.Job
}

func (r *fakeReader) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	return j, nil
}

func (r *fakeReader) GetLatestForUser(ctx context.Context, userID string) (*entity.Job, error) {
	var latest *entity.Job
	for _, j := range r.jobs {
		if j.UserID == nil || *j.UserID != userID {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, postgresql.ErrNotFound
	}
	return latest, nil
}

func (r *fakeReader) ListRecent(ctx context.Context, page, size int) ([]*entity.Job, error) {
	return r.recent, nil
}

type fakeSigner struct{ calls int }

func (s *fakeSigner) SignedURL(location string, ttl time.Duration) (string, error) {
	s.calls++
	return fmt.Sprintf("/files/%s?sig=test", location), nil
}

func strPtr(s string) *string { return &s }

func TestProject_ResultRefOnlyWhenCompleted(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	result := "processed/" + id.String() + ".txt"

	for _, tc := range []struct {
		status     entity.JobStatus
		resultPath *string
		errMsg     *string
		wantRef    bool
	}{
		{entity.StatusUploaded, nil, nil, false},
		{entity.StatusProcessing, nil, nil, false},
		{entity.StatusCompleted, &result, nil, true},
		{entity.StatusFailed, nil, strPtr("boom"), false},
	} {
		p := service.Project(&entity.Job{
			ID:               id,
			OriginalFilename: "scan.png",
			Status:           tc.status,
			ResultPath:       tc.resultPath,
			ErrorMessage:     tc.errMsg,
		})
		if got := p.ResultRef != nil; got != tc.wantRef {
			t.Fatalf("status %s: result ref presence = %v, want %v", tc.status, got, tc.wantRef)
		}
		if tc.status == entity.StatusFailed && (p.Error == nil || *p.Error != "boom") {
			t.Fatalf("failed projection must carry the error summary, got %v", p.Error)
		}
	}
}

func TestStatusService_GetStatusSignsResult(t *testing.T) {
	id := uuid.New()
	result := "processed/" + id.String() + ".txt"
	repo := &fakeReader{jobs: map[uuid.UUID]*entity.Job{
		id: {ID: id, Status: entity.StatusCompleted, ResultPath: &result},
	}}
	signer := &fakeSigner{}
	svc := service.NewStatusService(repo, signer, time.Minute)

	p, err := svc.GetStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if p.ResultRef == nil || *p.ResultRef != "/files/"+result+"?sig=test" {
		t.Fatalf("expected signed result ref, got %v", p.ResultRef)
	}
	if signer.calls != 1 {
		t.Fatalf("expected one signing call, got %d", signer.calls)
	}
}

func TestStatusService_GetStatusMiss(t *testing.T) {
	svc := service.NewStatusService(&fakeReader{jobs: map[uuid.UUID]*entity.Job{}}, &fakeSigner{}, time.Minute)

	if _, err := svc.GetStatus(context.Background(), uuid.New()); err != postgresql.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusService_DownloadURLRequiresCompleted(t *testing.T) {
	id := uuid.New()
	repo := &fakeReader{jobs: map[uuid.UUID]*entity.Job{
		id: {ID: id, Status: entity.StatusProcessing},
	}}
	svc := service.NewStatusService(repo, &fakeSigner{}, time.Minute)

	if _, err := svc.DownloadURL(context.Background(), id); err != service.ErrResultNotReady {
		t.Fatalf("expected ErrResultNotReady, got %v", err)
	}
}

func TestStatusService_LatestForUserReturnsNewest(t *testing.T) {
	user := "alice"
	older, newer := uuid.New(), uuid.New()
	result := "processed/" + newer.String() + ".txt"
	repo := &fakeReader{jobs: map[uuid.UUID]*entity.Job{
		older: {ID: older, UserID: &user, Status: entity.StatusCompleted, CreatedAt: time.Now().Add(-time.Hour)},
		newer: {ID: newer, UserID: &user, Status: entity.StatusCompleted, ResultPath: &result, CreatedAt: time.Now()},
	}}
	signer := &fakeSigner{}
	svc := service.NewStatusService(repo, signer, time.Minute)

	p, err := svc.LatestForUser(context.Background(), user)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if p.ID != newer.String() {
		t.Fatalf("expected newest job %s, got %s", newer, p.ID)
	}
	if p.ResultRef == nil || *p.ResultRef != "/files/"+result+"?sig=test" {
		t.Fatalf("expected signed result ref, got %v", p.ResultRef)
	}
}

func TestStatusService_LatestForUserMiss(t *testing.T) {
	svc := service.NewStatusService(&fakeReader{jobs: map[uuid.UUID]*entity.Job{}}, &fakeSigner{}, time.Minute)

	if _, err := svc.LatestForUser(context.Background(), "nobody"); err != postgresql.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusService_ListRecentProjectsAll(t *testing.T) {
	done := uuid.New()
	result := "processed/" + done.String() + ".txt"
	repo := &fakeReader{recent: []*entity.Job{
		{ID: done, Status: entity.StatusCompleted, ResultPath: &result},
		{ID: uuid.New(), Status: entity.StatusUploaded},
	}}
	svc := service.NewStatusService(repo, &fakeSigner{}, time.Minute)

	out, err := svc.ListRecent(context.Background(), 0, 20)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 projections, got %d", len(out))
	}
	if out[0].ResultRef == nil || out[1].ResultRef != nil {
		t.Fatal("only the completed job may carry a result ref")
	}
}
