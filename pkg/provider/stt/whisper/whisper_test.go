package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/voxrelay/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxrelay/pkg/types"
)

type inference struct {
	filename string
	language string
	model    string
	format   string
	data     []byte
}

// newMockServer returns a whisper.cpp-compatible server that replies with
// responseText and forwards each parsed request on the returned channel.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32) (*httptest.Server, <-chan inference) {
	t.Helper()
	got := make(chan inference, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		got <- inference{
			filename: hdr.Filename,
			language: r.FormValue("language"),
			model:    r.FormValue("model"),
			format:   r.FormValue("response_format"),
			data:     data,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}

func TestTranscribe_ForwardsAudioAndHints(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv, got := newMockServer(t, " hello world", &calls)

	p, err := whisper.New(srv.URL+"/", whisper.WithLanguage("de"), whisper.WithModel("small"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), types.Audio{Data: []byte("ogg-bytes"), Filename: "rec.ogg"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != " hello world" {
		t.Errorf("text = %q", text)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}

	req := <-got
	if req.filename != "audio.ogg" {
		t.Errorf("filename = %q, want audio.ogg", req.filename)
	}
	if req.language != "de" || req.model != "small" || req.format != "json" {
		t.Errorf("unexpected fields: %+v", req)
	}
	if string(req.data) != "ogg-bytes" {
		t.Errorf("data = %q", req.data)
	}
}

func TestTranscribe_DefaultFilenameAndNoModel(t *testing.T) {
	t.Parallel()

	srv, got := newMockServer(t, "ok", nil)
	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), types.Audio{Data: []byte("x")}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	req := <-got
	if req.filename != "audio.wav" {
		t.Errorf("filename = %q, want audio.wav", req.filename)
	}
	if req.model != "" {
		t.Errorf("model = %q, want empty", req.model)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), types.Audio{Data: []byte("x")}); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
}

func TestTranscribe_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), types.Audio{Data: []byte("x")}); err == nil {
		t.Fatal("expected error on invalid JSON")
	}
}
