package relay

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxrelay/internal/observe"
	"github.com/MrWong99/voxrelay/internal/session"
	"github.com/MrWong99/voxrelay/pkg/types"
)

// Result is a successful chat exchange.
type Result struct {
	// AudioURL is the synthesised reply as returned by the TTS provider.
	AudioURL string

	// Transcript is the recognised user utterance.
	Transcript string

	// ReplyText is the generated agent reply.
	ReplyText string
}

// Orchestrator drives the three stages for one request and owns the commit
// point between generation and synthesis.
//
// All methods are safe for concurrent use.
type Orchestrator struct {
	stt     *Transcriber
	llm     *Generator
	tts     *Synthesizer
	store   session.Store
	locker  *session.Locker
	metrics *observe.Metrics
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithSerializedSessions makes history load, generation and commit atomic per
// session, so concurrent requests for one session see each other's turns.
// Without it such requests may all read the same history and commit in
// arbitrary order.
func WithSerializedSessions() Option {
	return func(o *Orchestrator) { o.locker = session.NewLocker() }
}

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator over the given stages and session store.
func New(t *Transcriber, g *Generator, s *Synthesizer, store session.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{stt: t, llm: g, tts: s, store: store}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Chat runs one exchange for sessionID.
//
// The user and agent turns are committed to the session only after both
// transcription and generation succeed, and before synthesis starts; a TTS
// failure therefore leaves the two new turns in place. Every returned error
// is a [*StageError]. A panic anywhere in the pipeline is recovered and
// reported as [StageConnection].
//
// Cancellation of ctx is ignored so that a client disconnect never leaves a
// half-finished exchange; values such as the trace span are kept.
func (o *Orchestrator) Chat(ctx context.Context, sessionID string, audio types.Audio) (res *Result, err error) {
	ctx = observe.WithSessionID(context.WithoutCancel(ctx), sessionID)
	ctx, span := observe.StartSpan(ctx, "relay.chat",
		trace.WithAttributes(observe.Attr("session_id", sessionID)),
	)
	start := time.Now()
	o.metrics.InFlightChats.Add(ctx, 1)

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &StageError{
				Stage:  StageConnection,
				Detail: fmt.Sprint(r),
				Err:    fmt.Errorf("relay: panic: %v", r),
			}
			observe.Logger(ctx).Error("chat pipeline panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
		o.metrics.InFlightChats.Add(ctx, -1)
		outcome := "ok"
		if err != nil {
			se := AsStageError(err)
			err = se
			outcome = string(se.Stage)
		}
		o.metrics.RecordChat(ctx, outcome, time.Since(start).Seconds())
		observe.EndSpan(span, err)
	}()

	transcript, err := o.stt.Transcribe(ctx, audio)
	if err != nil {
		return nil, err
	}

	reply, err := o.exchange(ctx, sessionID, transcript)
	if err != nil {
		return nil, err
	}

	audioURL, err := o.tts.Synthesize(ctx, reply)
	if err != nil {
		return nil, err
	}

	observe.Logger(ctx).Debug("chat completed",
		"transcript_len", len(transcript),
		"reply_len", len(reply),
	)
	return &Result{AudioURL: audioURL, Transcript: transcript, ReplyText: reply}, nil
}

// exchange loads history, generates the reply and commits both turns.
func (o *Orchestrator) exchange(ctx context.Context, sessionID, transcript string) (string, error) {
	if o.locker != nil {
		unlock := o.locker.Lock(sessionID)
		defer unlock()
	}

	history, err := o.store.History(ctx, sessionID)
	if err != nil {
		return "", newStageError(StageConnection, fmt.Errorf("relay: load history: %w", err))
	}

	reply, err := o.llm.Generate(ctx, history, transcript)
	if err != nil {
		return "", err
	}

	if err := o.store.Append(ctx, sessionID,
		types.Turn{Speaker: types.SpeakerUser, Content: transcript},
		types.Turn{Speaker: types.SpeakerAgent, Content: reply},
	); err != nil {
		return "", newStageError(StageConnection, fmt.Errorf("relay: commit turns: %w", err))
	}
	o.metrics.TurnsCommitted.Add(ctx, 2)
	return reply, nil
}

// History returns the committed turns of sessionID.
func (o *Orchestrator) History(ctx context.Context, sessionID string) ([]types.Turn, error) {
	turns, err := o.store.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("relay: history: %w", err)
	}
	return turns, nil
}

// LogFailure writes err to the request logger with its stage attributes. The
// session id is taken from ctx (see [observe.WithSessionID]).
func LogFailure(ctx context.Context, err *StageError) {
	observe.Logger(ctx).LogAttrs(ctx, slog.LevelError, err.Message(),
		slog.String("stage", string(err.Stage)),
		slog.String("detail", err.Detail),
	)
}
