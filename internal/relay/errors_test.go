package relay

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStage_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stage    Stage
		message  string
		status   int
		fallback string
	}{
		{StageSTT, "STT transcription failed", http.StatusBadGateway, "/static/fallback_audio/stt_error.mp3"},
		{StageLLM, "LLM generation failed", http.StatusBadGateway, "/static/fallback_audio/llm_error.mp3"},
		{StageTTS, "TTS synthesis failed", http.StatusBadGateway, "/static/fallback_audio/tts_error.mp3"},
		{StageConnection, "Chat processing failed", http.StatusInternalServerError, "/static/fallback_audio/connection_error.mp3"},
		{Stage("BOGUS"), "Chat processing failed", http.StatusInternalServerError, "/static/fallback_audio/connection_error.mp3"},
		{Stage(""), "Chat processing failed", http.StatusInternalServerError, "/static/fallback_audio/connection_error.mp3"},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			t.Parallel()
			if got := tt.stage.Message(); got != tt.message {
				t.Errorf("Message() = %q, want %q", got, tt.message)
			}
			if got := tt.stage.HTTPStatus(); got != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.status)
			}
			if got := FallbackAudioPath(tt.stage); got != tt.fallback {
				t.Errorf("FallbackAudioPath() = %q, want %q", got, tt.fallback)
			}
		})
	}
}

func TestStages_Order(t *testing.T) {
	t.Parallel()
	want := []Stage{StageSTT, StageLLM, StageTTS, StageConnection}
	got := Stages()
	if len(got) != len(want) {
		t.Fatalf("Stages() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Stages()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStageError_Error(t *testing.T) {
	t.Parallel()
	cause := errors.New("murf: API error 500: boom")
	err := newStageError(StageTTS, cause)

	if got, want := err.Error(), "relay: TTS synthesis failed: murf: API error 500: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("StageError does not unwrap to its cause")
	}
	if err.FallbackAudioPath() != "/static/fallback_audio/tts_error.mp3" {
		t.Errorf("FallbackAudioPath() = %q", err.FallbackAudioPath())
	}

	bare := &StageError{Stage: StageSTT}
	if got := bare.Error(); got != "relay: STT transcription failed" {
		t.Errorf("Error() without detail = %q", got)
	}
}

func TestAsStageError(t *testing.T) {
	t.Parallel()

	if AsStageError(nil) != nil {
		t.Error("AsStageError(nil) should be nil")
	}

	llmErr := newStageError(StageLLM, errors.New("quota"))
	wrapped := fmt.Errorf("handler: %w", llmErr)
	if got := AsStageError(wrapped); got != llmErr {
		t.Errorf("AsStageError(wrapped) = %v, want original StageError", got)
	}

	plain := errors.New("multipart: NextPart: EOF")
	got := AsStageError(plain)
	if got.Stage != StageConnection {
		t.Errorf("plain error stage = %q, want CONNECTION", got.Stage)
	}
	if got.Detail != plain.Error() {
		t.Errorf("Detail = %q", got.Detail)
	}
	if got.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("HTTPStatus() = %d", got.HTTPStatus())
	}
}
