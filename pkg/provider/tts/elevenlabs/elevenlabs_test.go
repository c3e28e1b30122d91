package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxrelay/pkg/types"
)

// memStore is an in-memory audiostore.Store.
type memStore struct {
	mu   sync.Mutex
	puts [][]byte
	ct   string
	err  error
}

func (m *memStore) Put(_ context.Context, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.puts = append(m.puts, data)
	m.ct = contentType
	return "/static/generated/clip.mp3", nil
}

// ---- WebSocket message construction ----

func TestBuildWSMessage_WithVoiceSettings(t *testing.T) {
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	data, err := buildWSMessage("Hello there", vs)
	if err != nil {
		t.Fatalf("buildWSMessage: %v", err)
	}

	var msg textMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Text != "Hello there" {
		t.Errorf("expected text 'Hello there', got %q", msg.Text)
	}
	if msg.VoiceSettings == nil || msg.VoiceSettings.Stability != 0.5 {
		t.Errorf("unexpected voice settings: %+v", msg.VoiceSettings)
	}
}

func TestBuildWSMessage_FlushCommand(t *testing.T) {
	// ElevenLabs flush = {"text":""} with no other fields.
	data, err := buildWSMessage("", nil)
	if err != nil {
		t.Fatalf("buildWSMessage: %v", err)
	}
	if string(data) != `{"text":""}` {
		t.Errorf("flush payload = %s", data)
	}
}

func TestBuildURLForVoice(t *testing.T) {
	p, err := New("key", &memStore{}, WithModel("eleven_turbo_v2"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw := p.buildURLForVoice("voice-123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Scheme != "wss" || u.Host != "api.elevenlabs.io" {
		t.Errorf("unexpected host: %s", raw)
	}
	if u.Path != "/v1/text-to-speech/voice-123/stream-input" {
		t.Errorf("path = %q", u.Path)
	}
	if got := u.Query().Get("model_id"); got != "eleven_turbo_v2" {
		t.Errorf("model_id = %q", got)
	}
	if got := u.Query().Get("output_format"); got != defaultOutputFmt {
		t.Errorf("output_format = %q", got)
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"mp3_44100_128": "audio/mpeg",
		"opus_48000_64": "audio/ogg",
		"pcm_16000":     "application/octet-stream",
	}
	for in, want := range tests {
		if got := contentTypeFor(in); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", &memStore{}); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("key", nil); err == nil {
		t.Error("expected error for nil store")
	}
}

// ---- Synthesize against a fake stream-input server ----

// fakeStreamInput accepts a WebSocket, reads the three client frames and
// answers with the given server frames.
func fakeStreamInput(t *testing.T, replies []audioResponse, gotText chan<- string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()

		var texts []string
		for i := 0; i < 3; i++ {
			_, msg, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var m map[string]any
			_ = json.Unmarshal(msg, &m)
			if i == 0 && m["xi_api_key"] != "xi-key" {
				t.Errorf("BOI missing api key: %s", msg)
			}
			if s, _ := m["text"].(string); i == 1 {
				texts = append(texts, s)
			}
			if i == 2 && string(msg) != `{"text":""}` {
				t.Errorf("flush frame = %s", msg)
			}
		}
		gotText <- strings.Join(texts, "")

		for _, rep := range replies {
			b, _ := json.Marshal(rep)
			if err := conn.Write(r.Context(), websocket.MessageText, b); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSynthesize_CollectsFramesAndStores(t *testing.T) {
	gotText := make(chan string, 1)
	srv := fakeStreamInput(t, []audioResponse{
		{Audio: base64.StdEncoding.EncodeToString([]byte("ID3-part1-"))},
		{Audio: base64.StdEncoding.EncodeToString([]byte("part2"))},
		{IsFinal: true},
	}, gotText)
	defer srv.Close()

	store := &memStore{}
	p, err := New("xi-key", store, WithBaseURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	u, err := p.Synthesize(context.Background(), "Hello there.", types.VoiceProfile{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if u != "/static/generated/clip.mp3" {
		t.Errorf("url = %q", u)
	}
	if got := <-gotText; got != "Hello there. " {
		t.Errorf("sent text = %q", got)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.puts) != 1 || string(store.puts[0]) != "ID3-part1-part2" {
		t.Errorf("stored = %q", store.puts)
	}
	if store.ct != "audio/mpeg" {
		t.Errorf("content type = %q", store.ct)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := fakeStreamInput(t, []audioResponse{{Error: "quota_exceeded", Message: "out of credits"}}, make(chan string, 1))
	defer srv.Close()

	p, _ := New("xi-key", &memStore{}, WithBaseURL(wsURL(srv)))
	_, err := p.Synthesize(context.Background(), "x", types.VoiceProfile{ID: "v"})
	if err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	srv := fakeStreamInput(t, []audioResponse{{IsFinal: true}}, make(chan string, 1))
	defer srv.Close()

	p, _ := New("xi-key", &memStore{}, WithBaseURL(wsURL(srv)))
	if _, err := p.Synthesize(context.Background(), "x", types.VoiceProfile{}); err == nil {
		t.Fatal("expected error when no audio frames arrive")
	}
}

func TestSynthesize_StoreError(t *testing.T) {
	srv := fakeStreamInput(t, []audioResponse{
		{Audio: base64.StdEncoding.EncodeToString([]byte("a")), IsFinal: true},
	}, make(chan string, 1))
	defer srv.Close()

	p, _ := New("xi-key", &memStore{err: errors.New("disk full")}, WithBaseURL(wsURL(srv)))
	if _, err := p.Synthesize(context.Background(), "x", types.VoiceProfile{}); err == nil {
		t.Fatal("expected store error")
	}
}
