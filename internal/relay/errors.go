// Package relay runs one voice-chat exchange: transcribe the uploaded audio,
// generate a reply from the session history, commit both turns, and
// synthesise the reply to a hosted audio URL.
//
// Every failure leaving this package is a [*StageError] tagged with the stage
// that failed. The HTTP layer maps the tag to a status code, a fixed
// user-facing message, and a pre-recorded fallback clip the client can play
// instead of the missing reply.
package relay

import (
	"errors"
	"fmt"
	"net/http"
)

// Stage identifies the pipeline step a failure is attributed to.
type Stage string

const (
	// StageSTT is the speech-to-text step.
	StageSTT Stage = "STT"

	// StageLLM is the reply generation step.
	StageLLM Stage = "LLM"

	// StageTTS is the speech synthesis step.
	StageTTS Stage = "TTS"

	// StageConnection covers everything else: malformed uploads, session store
	// failures and unexpected panics.
	StageConnection Stage = "CONNECTION"
)

// FallbackAudioDir is the URL prefix under which the fallback clips are served.
const FallbackAudioDir = "/static/fallback_audio/"

var (
	stageMessages = map[Stage]string{
		StageSTT:        "STT transcription failed",
		StageLLM:        "LLM generation failed",
		StageTTS:        "TTS synthesis failed",
		StageConnection: "Chat processing failed",
	}
	fallbackFiles = map[Stage]string{
		StageSTT:        "stt_error.mp3",
		StageLLM:        "llm_error.mp3",
		StageTTS:        "tts_error.mp3",
		StageConnection: "connection_error.mp3",
	}
)

// Stages lists every stage in pipeline order, CONNECTION last.
func Stages() []Stage {
	return []Stage{StageSTT, StageLLM, StageTTS, StageConnection}
}

// known reports whether s is one of the four defined stages.
func (s Stage) known() bool {
	_, ok := stageMessages[s]
	return ok
}

// Message returns the fixed user-facing message for s. Unknown stages map to
// the CONNECTION message.
func (s Stage) Message() string {
	if !s.known() {
		s = StageConnection
	}
	return stageMessages[s]
}

// HTTPStatus returns 502 for the three provider stages and 500 otherwise.
func (s Stage) HTTPStatus() int {
	switch s {
	case StageSTT, StageLLM, StageTTS:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FallbackAudioPath returns the URL path of the pre-recorded clip for s.
// Unknown stages map to the CONNECTION clip.
func FallbackAudioPath(s Stage) string {
	if !s.known() {
		s = StageConnection
	}
	return FallbackAudioDir + fallbackFiles[s]
}

// StageError is the single error type produced by the relay pipeline.
type StageError struct {
	// Stage is the failing pipeline step.
	Stage Stage

	// Detail is free-text diagnostic information, usually the provider's own
	// error message. May be empty.
	Detail string

	// Err is the underlying cause, if any.
	Err error
}

// newStageError wraps err as a failure of stage, using err's text as Detail.
func newStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Detail: err.Error(), Err: err}
}

// Error implements error.
func (e *StageError) Error() string {
	if e.Detail == "" {
		return "relay: " + e.Stage.Message()
	}
	return fmt.Sprintf("relay: %s: %s", e.Stage.Message(), e.Detail)
}

// Unwrap returns the underlying cause.
func (e *StageError) Unwrap() error { return e.Err }

// Message returns the fixed user-facing message for the failing stage.
func (e *StageError) Message() string { return e.Stage.Message() }

// HTTPStatus returns the response status code for the failing stage.
func (e *StageError) HTTPStatus() int { return e.Stage.HTTPStatus() }

// FallbackAudioPath returns the fallback clip for the failing stage.
func (e *StageError) FallbackAudioPath() string { return FallbackAudioPath(e.Stage) }

// AsStageError classifies err. A [*StageError] anywhere in the chain is
// returned as-is; any other non-nil error becomes a CONNECTION failure.
// A nil err returns nil.
func AsStageError(err error) *StageError {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return newStageError(StageConnection, err)
}
