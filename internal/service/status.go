package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"textify/internal/entity"
)

// ProjectedStatus is the externally consumable view of a job.
type ProjectedStatus struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Filename  string    `json:"filename"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ResultRef *string   `json:"result_ref,omitempty"`
}

// Project maps a job row to its status view. Pure: no side effects, no
// mutation. ResultRef carries the raw result location; turning it into a
// retrievable URL is the caller's concern.
func Project(job *entity.Job) ProjectedStatus {
	p := ProjectedStatus{
		ID:        job.ID.String(),
		Status:    string(job.Status),
		Filename:  job.OriginalFilename,
		Error:     job.ErrorMessage,
		CreatedAt: job.CreatedAt,
	}
	if job.Status == entity.StatusCompleted && job.ResultPath != nil {
		p.ResultRef = job.ResultPath
	}
	return p
}

// JobReader is the repository port for status queries.
type JobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	GetLatestForUser(ctx context.Context, userID string) (*entity.Job, error)
	ListRecent(ctx context.Context, page, size int) ([]*entity.Job, error)
}

// URLSigner turns a result location into an expiring download URL
// (implementation: storage.FSStore).
type URLSigner interface {
	SignedURL(location string, ttl time.Duration) (string, error)
}

type StatusService struct {
	repo   JobReader
	signer URLSigner
	ttl    time.Duration
}

func NewStatusService(repo JobReader, signer URLSigner, ttl time.Duration) *StatusService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &StatusService{repo: repo, signer: signer, ttl: ttl}
}

// GetStatus returns the projection with ResultRef swapped for a signed URL.
func (s *StatusService) GetStatus(ctx context.Context, id uuid.UUID) (ProjectedStatus, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return ProjectedStatus{}, err
	}
	return s.decorate(Project(job))
}

// LatestForUser returns the projection of the user's newest job.
func (s *StatusService) LatestForUser(ctx context.Context, userID string) (ProjectedStatus, error) {
	job, err := s.repo.GetLatestForUser(ctx, userID)
	if err != nil {
		return ProjectedStatus{}, err
	}
	return s.decorate(Project(job))
}

func (s *StatusService) ListRecent(ctx context.Context, page, size int) ([]ProjectedStatus, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	jobs, err := s.repo.ListRecent(ctx, page, size)
	if err != nil {
		return nil, err
	}
	out := make([]ProjectedStatus, 0, len(jobs))
	for _, job := range jobs {
		p, err := s.decorate(Project(job))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// DownloadURL returns a signed URL for a completed job's result.
func (s *StatusService) DownloadURL(ctx context.Context, id uuid.UUID) (string, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Status != entity.StatusCompleted || job.ResultPath == nil {
		return "", ErrResultNotReady
	}
	return s.signer.SignedURL(*job.ResultPath, s.ttl)
}

func (s *StatusService) decorate(p ProjectedStatus) (ProjectedStatus, error) {
	if p.ResultRef == nil {
		return p, nil
	}
	url, err := s.signer.SignedURL(*p.ResultRef, s.ttl)
	if err != nil {
		return ProjectedStatus{}, err
	}
	p.ResultRef = &url
	return p, nil
}
