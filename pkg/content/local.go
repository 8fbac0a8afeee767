// Package content stores uploaded post attachments and hands back the URL
// they are served from.
package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MediaPrefix is the URL path under which stored files are served
const MediaPrefix = "/media/"

// Store is the attachment content store
type Store interface {
	// Upload stores data and returns the URL it can be fetched from
	Upload(ctx context.Context, data []byte, name string) (string, error)

	// Delete removes a previously uploaded file by its URL. Deleting a
	// missing file is not an error.
	Delete(ctx context.Context, url string) error
}

var unsafeExt = regexp.MustCompile(`[^a-z0-9]`)

// LocalStore keeps attachments as files in a directory
type LocalStore struct {
	basePath string
	baseURL  string
}

// NewLocalStore creates a store rooted at basePath. publicURL is the
// externally visible server address that prefixes returned URLs.
func NewLocalStore(basePath, publicURL string) (*LocalStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("media directory is required")
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	return &LocalStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(publicURL, "/"),
	}, nil
}

// Dir returns the directory files are stored in
func (s *LocalStore) Dir() string {
	return s.basePath
}

// Upload writes data under a fresh random key that keeps the extension of
// name. The file appears atomically.
func (s *LocalStore) Upload(ctx context.Context, data []byte, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := uuid.New().String() + extension(name)
	path := filepath.Join(s.basePath, key)

	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close upload: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}

	return s.baseURL + MediaPrefix + key, nil
}

// Delete removes the file behind url. URLs that do not belong to this store
// are ignored.
func (s *LocalStore) Delete(ctx context.Context, url string) error {
	key, ok := s.keyFor(url)
	if !ok {
		return nil
	}

	if err := os.Remove(filepath.Join(s.basePath, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}

// Owns reports whether url points at a file in this store
func (s *LocalStore) Owns(url string) bool {
	_, ok := s.keyFor(url)
	return ok
}

func (s *LocalStore) keyFor(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, s.baseURL+MediaPrefix)
	if !ok || key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", false
	}
	return key, true
}

func extension(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	ext = unsafeExt.ReplaceAllString(ext, "")
	if ext == "" || len(ext) > 8 {
		return ""
	}
	return "." + ext
}
