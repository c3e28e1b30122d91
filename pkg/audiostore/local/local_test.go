package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPut(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := New(dir, "/static/generated/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	url, err := s.Put(context.Background(), []byte("ID3-mp3"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(url, "/static/generated/") || !strings.HasSuffix(url, ".mp3") {
		t.Fatalf("url = %q", url)
	}

	rel := strings.TrimPrefix(url, "/static/generated/")
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "ID3-mp3" {
		t.Errorf("stored %q", data)
	}
}

func TestPut_CancelledContext(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir(), "/static/generated")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, []byte("x"), "audio/mpeg"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestNew_EmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := New("", "/x"); err == nil {
		t.Fatal("expected error for empty dir")
	}
}
