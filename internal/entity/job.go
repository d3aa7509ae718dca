package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusUploaded   JobStatus = "UPLOADED"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further status transition is permitted.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type FileCategory string

const (
	CategoryImage    FileCategory = "image"
	CategoryDocument FileCategory = "document"
	CategoryUnknown  FileCategory = "unknown"
)

type Job struct {
	ID               uuid.UUID    `json:"id"`
	UserID           *string      `json:"user_id,omitempty"`
	OriginalFilename string       `json:"original_filename"`
	SourcePath       string       `json:"source_path"`
	ResultPath       *string      `json:"result_path,omitempty"` // non-nil iff status COMPLETED
	Category         FileCategory `json:"file_category"`
	ContentType      string       `json:"content_type"`
	Status           JobStatus    `json:"status"`
	ErrorMessage     *string      `json:"error_message,omitempty"` // non-nil iff status FAILED
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// OutboxEntry announces a committed job to the transport. One per job,
// written in the same transaction as the job row, deleted by the relay
// once the transport accepted the publish.
type OutboxEntry struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    *string   `json:"user_id,omitempty"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// DeadLetter records a notification whose job never became visible to the
// consumer within the retry budget.
type DeadLetter struct {
	JobID     uuid.UUID `json:"job_id"`
	Payload   []byte    `json:"payload"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
