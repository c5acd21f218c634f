package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var ErrEmptyBlob = errors.New("empty blob")

// BlobStore keeps uploaded message attachments and returns a URL for each.
type BlobStore interface {
	Put(ctx context.Context, name string, r io.Reader, contentType string) (string, error)
}

// DiskStore writes blobs under a local directory that the HTTP server serves
// at BaseURL.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the directory blobs are written to.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Put stores r under a fresh key. The original name only contributes its
// extension; when it has none, one is derived from contentType.
func (s *DiskStore) Put(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := uuid.NewString() + extension(name, contentType)
	path := filepath.Join(s.dir, key)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n == 0 {
		err = ErrEmptyBlob
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

func extension(name, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(filepath.Base(name))); ext != "" && len(ext) <= 8 {
		return ext
	}
	if mt := mimetype.Lookup(contentType); mt != nil {
		return mt.Extension()
	}
	return ""
}
