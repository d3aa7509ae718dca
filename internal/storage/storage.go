package storage

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps any failure of the blob store so callers can treat
// storage trouble uniformly without knowing the backend.
var ErrUnavailable = errors.New("storage unavailable")

// Store is the blob collaborator: content-addressed put/get plus expiring
// download URLs for completed results.
type Store interface {
	Put(ctx context.Context, location string, data []byte, contentType string) error
	Get(ctx context.Context, location string) ([]byte, error)
	SignedURL(location string, ttl time.Duration) (string, error)
}
