// Package local implements audiostore.Store on the local filesystem. Files
// are written below a directory that the HTTP server exposes as static
// content, so the returned URL is a path on the relay itself.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/voxrelay/pkg/audiostore"
)

// Store writes audio files into Dir and returns URLs below BaseURL.
type Store struct {
	dir     string
	baseURL string
	now     func() time.Time
}

// New creates a Store rooted at dir. baseURL is the public prefix the directory
// is served under, e.g. "/static/generated". The directory is created if needed.
func New(dir, baseURL string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("local: dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local: create %s: %w", dir, err)
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}, nil
}

// Put implements audiostore.Store.
func (s *Store) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("local: put: %w", err)
	}
	key := audiostore.NewKey("", contentType, s.now())
	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("local: put: %w", err)
	}

	// Write to a temp file first so a reader never sees a partial clip.
	tmp := dst + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("local: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("local: commit %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

var _ audiostore.Store = (*Store)(nil)
