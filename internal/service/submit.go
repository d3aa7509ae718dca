package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"textify/internal/entity"
)

// ErrUnsupportedType rejects a submission before anything is written.
var ErrUnsupportedType = errors.New("unsupported file type")

// JobCreator is the repository port the submitter needs
// (implementation: postgresql.JobRepository).
type JobCreator interface {
	CreateWithOutbox(ctx context.Context, job *entity.Job, payload []byte) error
}

type SubmitService struct {
	repo JobCreator
}

func NewSubmitService(repo JobCreator) *SubmitService {
	return &SubmitService{repo: repo}
}

type SubmitRequest struct {
	SourceLocation string // blob location of the already-stored upload
	Filename       string
	ContentType    string
	UserID         string // optional
}

// Submit creates the job row and its outbox entry in one transaction and
// returns the new job ID. Publishing is deferred to the relay on purpose:
// a submission never blocks on, or partially fails because of, transport
// availability.
func (s *SubmitService) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	if req.SourceLocation == "" {
		return uuid.Nil, errors.New("source location is required")
	}

	category := entity.CategoryForContentType(req.ContentType)
	if category == entity.CategoryUnknown {
		return uuid.Nil, fmt.Errorf("%w: %q, only images (JPEG, PNG, GIF, BMP, WebP) and PDFs are allowed",
			ErrUnsupportedType, req.ContentType)
	}

	job := &entity.Job{
		ID:               uuid.New(),
		OriginalFilename: req.Filename,
		SourcePath:       req.SourceLocation,
		Category:         category,
		ContentType:      req.ContentType,
		Status:           entity.StatusUploaded,
	}
	if req.UserID != "" {
		job.UserID = &req.UserID
	}

	payload, err := EncodeNotification(Notification{
		JobID:          job.ID.String(),
		SourceLocation: job.SourcePath,
	})
	if err != nil {
		return uuid.Nil, err
	}

	if err := s.repo.CreateWithOutbox(ctx, job, payload); err != nil {
		return uuid.Nil, err
	}

	log.Printf("[submit] job_id=%s category=%s source=%s status=UPLOADED", job.ID, category, job.SourcePath)
	return job.ID, nil
}
