package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voxrelay/internal/observe"
	"github.com/MrWong99/voxrelay/internal/resilience"
	"github.com/MrWong99/voxrelay/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxrelay/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/voxrelay/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/voxrelay/pkg/provider/tts/mock"
	"github.com/MrWong99/voxrelay/pkg/types"
)

// testMetrics returns isolated metrics and the reader that collects them.
func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// counterValue sums all data points of the named int64 counter whose attribute
// key equals value.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name, key, value string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func requireStage(t *testing.T, err error, want Stage) *StageError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s failure, got nil", want)
	}
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("error %v (%T) is not a *StageError", err, err)
	}
	if se.Stage != want {
		t.Fatalf("stage = %s, want %s (err: %v)", se.Stage, want, err)
	}
	return se
}

func TestTranscriber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider *sttmock.Provider
		want     string
		wantErr  bool
		detail   string
	}{
		{name: "trims text", provider: &sttmock.Provider{Text: "  hello there \n"}, want: "hello there"},
		{name: "provider error", provider: &sttmock.Provider{Err: errors.New("assemblyai: status error")}, wantErr: true, detail: "assemblyai: status error"},
		{name: "no text", provider: &sttmock.Provider{Text: ""}, wantErr: true, detail: errEmptyTranscript.Error()},
		{name: "whitespace only", provider: &sttmock.Provider{Text: " \t "}, wantErr: true, detail: errEmptyTranscript.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _ := testMetrics(t)
			tr := NewTranscriber(tt.provider, WithStageMetrics(m))
			audio := types.Audio{Data: []byte{1, 2, 3}, ContentType: "audio/webm"}

			got, err := tr.Transcribe(context.Background(), audio)
			if tt.wantErr {
				se := requireStage(t, err, StageSTT)
				if se.Detail != tt.detail {
					t.Errorf("detail = %q, want %q", se.Detail, tt.detail)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
			if calls := tt.provider.Calls; len(calls) != 1 || string(calls[0].Audio.Data) != "\x01\x02\x03" {
				t.Errorf("audio not forwarded unchanged: %+v", calls)
			}
		})
	}
}

func TestGenerator_SendsHistoryThenUtterance(t *testing.T) {
	t.Parallel()
	m, _ := testMetrics(t)
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: " Sure thing. "}}
	g := NewGenerator(p, Prompt{System: "be brief", Temperature: 0.4, MaxTokens: 64}, WithStageMetrics(m))

	history := []types.Turn{
		{Speaker: types.SpeakerUser, Content: "hi"},
		{Speaker: types.SpeakerAgent, Content: "hello"},
	}
	reply, err := g.Generate(context.Background(), history, "tell me a joke")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "Sure thing." {
		t.Errorf("reply = %q", reply)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	want := []types.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "tell me a joke"},
	}
	if len(req.Messages) != len(want) {
		t.Fatalf("messages = %+v", req.Messages)
	}
	for i := range want {
		if req.Messages[i] != want[i] {
			t.Errorf("message[%d] = %+v, want %+v", i, req.Messages[i], want[i])
		}
	}
	if req.SystemPrompt != "be brief" || req.Temperature != 0.4 || req.MaxTokens != 64 {
		t.Errorf("prompt settings not forwarded: %+v", req)
	}
	if len(history) != 2 {
		t.Error("Generate mutated the caller's history")
	}
}

func TestGenerator_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider *llmmock.Provider
	}{
		{name: "provider error", provider: &llmmock.Provider{CompleteErr: errors.New("gemini: 429")}},
		{name: "nil response", provider: &llmmock.Provider{}},
		{name: "empty content", provider: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "   "}}},
		{name: "unconfigured", provider: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _ := testMetrics(t)
			var p llm.Provider = tt.provider
			if tt.provider == nil {
				p = llm.Unconfigured(errors.New("gemini: apiKey must not be empty"))
			}
			g := NewGenerator(p, Prompt{}, WithStageMetrics(m))
			_, err := g.Generate(context.Background(), nil, "hi")
			requireStage(t, err, StageLLM)
		})
	}
}

func TestSynthesizer(t *testing.T) {
	t.Parallel()

	voice := types.VoiceProfile{ID: "en-US-natalie", Provider: "murf"}

	t.Run("returns URL unchanged", func(t *testing.T) {
		t.Parallel()
		m, _ := testMetrics(t)
		p := &ttsmock.Provider{URL: "https://cdn.murf.ai/a.mp3?sig=1 "}
		s := NewSynthesizer(p, voice, WithStageMetrics(m))
		got, err := s.Synthesize(context.Background(), "hello")
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if got != "https://cdn.murf.ai/a.mp3?sig=1 " {
			t.Errorf("url = %q", got)
		}
		if p.Calls[0].Voice != voice || p.Calls[0].Text != "hello" {
			t.Errorf("call = %+v", p.Calls[0])
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		t.Parallel()
		m, _ := testMetrics(t)
		s := NewSynthesizer(&ttsmock.Provider{}, voice, WithStageMetrics(m))
		_, err := s.Synthesize(context.Background(), "hello")
		se := requireStage(t, err, StageTTS)
		if se.Detail != errEmptyAudioURL.Error() {
			t.Errorf("detail = %q", se.Detail)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		t.Parallel()
		m, _ := testMetrics(t)
		s := NewSynthesizer(&ttsmock.Provider{Err: errors.New("murf: API error 500: boom")}, voice, WithStageMetrics(m))
		_, err := s.Synthesize(context.Background(), "hello")
		se := requireStage(t, err, StageTTS)
		if se.Detail != "murf: API error 500: boom" {
			t.Errorf("detail = %q", se.Detail)
		}
	})
}

func TestStage_TimeoutBoundsProviderCall(t *testing.T) {
	t.Parallel()
	m, _ := testMetrics(t)
	p := &ttsmock.Provider{SynthesizeFunc: func(ctx context.Context, _ string, _ types.VoiceProfile) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	s := NewSynthesizer(p, types.VoiceProfile{}, WithTimeout(20*time.Millisecond), WithStageMetrics(m))

	start := time.Now()
	_, err := s.Synthesize(context.Background(), "slow")
	se := requireStage(t, err, StageTTS)
	if !errors.Is(se, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not applied, took %v", elapsed)
	}
}

func TestStage_OpenBreakerFailsFastWithOwnStage(t *testing.T) {
	t.Parallel()
	m, _ := testMetrics(t)
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "stt/test",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	p := &sttmock.Provider{Err: errors.New("down")}
	tr := NewTranscriber(p, WithBreaker(cb), WithStageMetrics(m))

	for range 2 {
		_, _ = tr.Transcribe(context.Background(), types.Audio{})
	}
	_, err := tr.Transcribe(context.Background(), types.Audio{})
	se := requireStage(t, err, StageSTT)
	if !errors.Is(se, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if p.CallCount() != 2 {
		t.Errorf("provider calls = %d, want 2 (third must be rejected)", p.CallCount())
	}
}

func TestStage_EmptyResultsDoNotTripBreaker(t *testing.T) {
	t.Parallel()
	newCB := func(name string) *resilience.CircuitBreaker {
		return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         name,
			MaxFailures:  5,
			ResetTimeout: time.Hour,
		})
	}

	t.Run("stt", func(t *testing.T) {
		t.Parallel()
		m, _ := testMetrics(t)
		cb := newCB("stt/test")
		p := &sttmock.Provider{Text: "   "}
		tr := NewTranscriber(p, WithBreaker(cb), WithStageMetrics(m))

		for range 5 {
			_, err := tr.Transcribe(context.Background(), types.Audio{})
			requireStage(t, err, StageSTT)
		}
		p.TranscribeFunc = func(context.Context, types.Audio) (string, error) { return "hello", nil }
		got, err := tr.Transcribe(context.Background(), types.Audio{})
		if err != nil {
			t.Fatalf("Transcribe after empty transcripts: %v", err)
		}
		if got != "hello" {
			t.Errorf("text = %q, want hello", got)
		}
		if p.CallCount() != 6 {
			t.Errorf("provider calls = %d, want 6", p.CallCount())
		}
		if cb.State() != resilience.StateClosed {
			t.Errorf("breaker state = %v, want closed", cb.State())
		}
	})

	t.Run("llm", func(t *testing.T) {
		t.Parallel()
		m, _ := testMetrics(t)
		cb := newCB("llm/test")
		p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: ""}}
		g := NewGenerator(p, Prompt{}, WithBreaker(cb), WithStageMetrics(m))

		for range 6 {
			_, err := g.Generate(context.Background(), nil, "hi")
			se := requireStage(t, err, StageLLM)
			if errors.Is(se, resilience.ErrCircuitOpen) {
				t.Fatal("empty replies opened the breaker")
			}
		}
		if cb.State() != resilience.StateClosed {
			t.Errorf("breaker state = %v, want closed", cb.State())
		}
	})

	t.Run("tts", func(t *testing.T) {
		t.Parallel()
		m, _ := testMetrics(t)
		cb := newCB("tts/test")
		p := &ttsmock.Provider{}
		s := NewSynthesizer(p, types.VoiceProfile{}, WithBreaker(cb), WithStageMetrics(m))

		for range 6 {
			_, err := s.Synthesize(context.Background(), "hi")
			se := requireStage(t, err, StageTTS)
			if errors.Is(se, resilience.ErrCircuitOpen) {
				t.Fatal("missing audio references opened the breaker")
			}
		}
		if cb.State() != resilience.StateClosed {
			t.Errorf("breaker state = %v, want closed", cb.State())
		}
	})
}

func TestStage_RecordsProviderMetrics(t *testing.T) {
	t.Parallel()
	m, reader := testMetrics(t)
	p := &sttmock.Provider{Text: "ok"}
	tr := NewTranscriber(p, WithProviderName("deepgram"), WithStageMetrics(m))

	_, _ = tr.Transcribe(context.Background(), types.Audio{})
	p.Text = ""
	_, _ = tr.Transcribe(context.Background(), types.Audio{})
	p.Err = errors.New("down")
	_, _ = tr.Transcribe(context.Background(), types.Audio{})

	if got := counterValue(t, reader, "voxrelay.provider.requests", "provider", "deepgram"); got != 3 {
		t.Errorf("provider requests = %d, want 3", got)
	}
	// An empty transcript is a stage failure, not a provider error.
	if got := counterValue(t, reader, "voxrelay.provider.errors", "kind", "stt"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
}
