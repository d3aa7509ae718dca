package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FSStore keeps blobs under a root directory and signs download URLs with
// an HMAC so the HTTP layer can serve them without consulting the database.
type FSStore struct {
	root     string
	secret   []byte
	basePath string // URL prefix the file handler is mounted on, e.g. "/files"
	now      func() time.Time
}

func NewFSStore(root string, secret []byte, basePath string) *FSStore {
	return &FSStore{
		root:     root,
		secret:   secret,
		basePath: strings.TrimRight(basePath, "/"),
		now:      time.Now,
	}
}

func (s *FSStore) path(location string) (string, error) {
	cleaned := filepath.Clean("/" + location)
	if cleaned == "/" || strings.Contains(location, "..") {
		return "", fmt.Errorf("%w: bad location %q", ErrUnavailable, location)
	}
	return filepath.Join(s.root, cleaned), nil
}

func (s *FSStore) Put(ctx context.Context, location string, data []byte, contentType string) error {
	p, err := s.path(location)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, location string) ([]byte, error) {
	p, err := s.path(location)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

// SignedURL returns a relative URL that Verify accepts until exp.
func (s *FSStore) SignedURL(location string, ttl time.Duration) (string, error) {
	if _, err := s.path(location); err != nil {
		return "", err
	}
	exp := s.now().Add(ttl).Unix()
	sig := s.sign(location, exp)
	return fmt.Sprintf("%s/%s?exp=%d&sig=%s", s.basePath, location, exp, sig), nil
}

// Verify checks an exp/sig pair produced by SignedURL for the location.
func (s *FSStore) Verify(location string, exp int64, sig string) bool {
	if s.now().Unix() > exp {
		return false
	}
	want := s.sign(location, exp)
	return hmac.Equal([]byte(want), []byte(sig))
}

// VerifyRaw is Verify with the exp still in query-string form.
func (s *FSStore) VerifyRaw(location, expStr, sig string) bool {
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return false
	}
	return s.Verify(location, exp, sig)
}

func (s *FSStore) sign(location string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", location, exp)
	return hex.EncodeToString(mac.Sum(nil))
}
