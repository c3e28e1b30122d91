package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxrelay/internal/observe"
	"github.com/MrWong99/voxrelay/internal/resilience"
	"github.com/MrWong99/voxrelay/pkg/provider/llm"
	"github.com/MrWong99/voxrelay/pkg/provider/stt"
	"github.com/MrWong99/voxrelay/pkg/provider/tts"
	"github.com/MrWong99/voxrelay/pkg/types"
)

var (
	errEmptyTranscript = errors.New("transcription returned no text")
	errEmptyReply      = errors.New("language model returned an empty reply")
	errEmptyAudioURL   = errors.New("synthesis returned no audio reference")
)

// stage holds the cross-cutting concerns shared by every provider call:
// a per-call timeout, a circuit breaker, metrics and a span.
type stage struct {
	kind    Stage
	backend string
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics
}

// StageOption configures a [Transcriber], [Generator] or [Synthesizer].
type StageOption func(*stage)

// WithProviderName labels metrics, spans and logs with the backend name
// (e.g. "assemblyai"). Defaults to "unknown".
func WithProviderName(name string) StageOption {
	return func(s *stage) { s.backend = name }
}

// WithTimeout bounds each provider call. Zero disables the bound.
func WithTimeout(d time.Duration) StageOption {
	return func(s *stage) { s.timeout = d }
}

// WithBreaker guards the provider with cb. A nil breaker disables the guard.
func WithBreaker(cb *resilience.CircuitBreaker) StageOption {
	return func(s *stage) { s.breaker = cb }
}

// WithStageMetrics overrides the metrics sink. Defaults to
// [observe.DefaultMetrics].
func WithStageMetrics(m *observe.Metrics) StageOption {
	return func(s *stage) { s.metrics = m }
}

func newStage(kind Stage, opts []StageOption) stage {
	s := stage{kind: kind, backend: "unknown"}
	for _, o := range opts {
		o(&s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

func (s *stage) histogram() metric.Float64Histogram {
	switch s.kind {
	case StageSTT:
		return s.metrics.STTDuration
	case StageLLM:
		return s.metrics.LLMDuration
	default:
		return s.metrics.TTSDuration
	}
}

// call runs fn under the breaker and timeout and records its outcome. Any
// error is returned as a [*StageError] for s.kind. fn must return only the
// provider's own error. Empty-result checks run after call and never count
// against the breaker.
func (s *stage) call(ctx context.Context, fn func(context.Context) error) error {
	kind := strings.ToLower(string(s.kind))
	ctx, span := observe.StartSpan(ctx, "relay."+kind,
		trace.WithAttributes(observe.Attr("provider", s.backend)),
	)
	start := time.Now()

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		return fn(ctx)
	})

	s.histogram().Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", s.backend)))
	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.RecordProviderError(ctx, s.backend, kind)
	}
	s.metrics.RecordProviderRequest(ctx, s.backend, kind, status)
	observe.EndSpan(span, err)

	if err != nil {
		return newStageError(s.kind, err)
	}
	return nil
}

// Transcriber turns an uploaded recording into text.
type Transcriber struct {
	stage
	provider stt.Provider
}

// NewTranscriber wraps p as the STT stage.
func NewTranscriber(p stt.Provider, opts ...StageOption) *Transcriber {
	return &Transcriber{stage: newStage(StageSTT, opts), provider: p}
}

// Transcribe forwards audio to the provider unchanged and returns the trimmed
// transcript. A provider error or a transcript with no text fails with
// [StageSTT].
func (t *Transcriber) Transcribe(ctx context.Context, audio types.Audio) (string, error) {
	var out string
	err := t.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = t.provider.Transcribe(ctx, audio)
		return err
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(out)
	if text == "" {
		return "", newStageError(StageSTT, errEmptyTranscript)
	}
	return text, nil
}

// Prompt holds the generation settings applied to every [Generator] call.
type Prompt struct {
	// System is an optional instruction placed ahead of the history.
	System string

	// Temperature and MaxTokens are passed through; zero keeps provider defaults.
	Temperature float64
	MaxTokens   int
}

// Generator produces the agent's reply from the session history.
type Generator struct {
	stage
	provider llm.Provider
	prompt   Prompt
}

// NewGenerator wraps p as the LLM stage.
func NewGenerator(p llm.Provider, prompt Prompt, opts ...StageOption) *Generator {
	return &Generator{stage: newStage(StageLLM, opts), provider: p, prompt: prompt}
}

// Generate sends history followed by userText as the next user turn and
// returns the trimmed reply. The call is stateless; the full history is
// re-sent every time. A provider error or an empty reply fails with
// [StageLLM].
func (g *Generator) Generate(ctx context.Context, history []types.Turn, userText string) (string, error) {
	turns := make([]types.Turn, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, types.Turn{Speaker: types.SpeakerUser, Content: userText})
	req := llm.CompletionRequest{
		Messages:     types.Messages(turns),
		SystemPrompt: g.prompt.System,
		Temperature:  g.prompt.Temperature,
		MaxTokens:    g.prompt.MaxTokens,
	}

	var resp *llm.CompletionResponse
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = g.provider.Complete(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", newStageError(StageLLM, errEmptyReply)
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", newStageError(StageLLM, errEmptyReply)
	}
	return reply, nil
}

// Synthesizer turns reply text into a hosted audio URL.
type Synthesizer struct {
	stage
	provider tts.Provider
	voice    types.VoiceProfile
}

// NewSynthesizer wraps p as the TTS stage. voice is used for every call; a
// zero voice lets the provider apply its own default.
func NewSynthesizer(p tts.Provider, voice types.VoiceProfile, opts ...StageOption) *Synthesizer {
	return &Synthesizer{stage: newStage(StageTTS, opts), provider: p, voice: voice}
}

// Synthesize returns the provider's audio reference unchanged. A provider
// error or a missing reference fails with [StageTTS].
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	var url string
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		url, err = s.provider.Synthesize(ctx, text, s.voice)
		return err
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(url) == "" {
		return "", newStageError(StageTTS, errEmptyAudioURL)
	}
	return url, nil
}
