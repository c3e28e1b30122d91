package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/voxrelay/internal/observe"
	"github.com/MrWong99/voxrelay/internal/relay"
	"github.com/MrWong99/voxrelay/pkg/types"
)

// uploadField is the multipart form field carrying the recorded audio.
const uploadField = "file"

type chatResponse struct {
	Success    bool   `json:"success"`
	AudioURL   string `json:"audio_url"`
	Transcript string `json:"transcript"`
	LLMText    string `json:"llm_text"`
}

type errorResponse struct {
	Success           bool    `json:"success"`
	Error             string  `json:"error"`
	Details           *string `json:"details"`
	FallbackAudioPath string  `json:"fallback_audio_path"`
}

type turnJSON struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type historyResponse struct {
	SessionID string     `json:"session_id"`
	Turns     []turnJSON `json:"turns"`
}

// handleChat runs one voice exchange. Every failure, including a malformed
// upload, is answered with the stage's fallback audio.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	ctx := observe.WithSessionID(r.Context(), sessionID)
	start := time.Now()

	audio, err := s.readUpload(w, r)
	if err != nil {
		// The upload never reaches the relay, so its outcome is recorded here.
		s.metrics.RecordChat(ctx, string(relay.StageConnection), time.Since(start).Seconds())
		s.writeFailure(ctx, w, err)
		return
	}

	res, err := s.relay.Chat(ctx, sessionID, audio)
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Success:    true,
		AudioURL:   res.AudioURL,
		Transcript: res.Transcript,
		LLMText:    res.ReplyText,
	})
}

// readUpload buffers the uploaded audio in memory, bounded by the configured
// upload limit.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (types.Audio, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	f, hdr, err := r.FormFile(uploadField)
	if err != nil {
		return types.Audio{}, fmt.Errorf("server: read upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return types.Audio{}, fmt.Errorf("server: read upload: %w", err)
	}
	return types.Audio{
		Data:        data,
		ContentType: hdr.Header.Get("Content-Type"),
		Filename:    hdr.Filename,
	}, nil
}

func (s *Server) writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	se := relay.AsStageError(err)
	relay.LogFailure(ctx, se)

	resp := errorResponse{
		Error:             se.Message(),
		FallbackAudioPath: se.FallbackAudioPath(),
	}
	if se.Detail != "" {
		resp.Details = &se.Detail
	}
	writeJSON(w, se.HTTPStatus(), resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	ctx := observe.WithSessionID(r.Context(), sessionID)
	turns, err := s.relay.History(ctx, sessionID)
	if err != nil {
		observe.Logger(ctx).Error("history lookup failed", "err", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	resp := historyResponse{SessionID: sessionID, Turns: make([]turnJSON, 0, len(turns))}
	for _, t := range turns {
		resp.Turns = append(resp.Turns, turnJSON{Role: t.Speaker.String(), Content: t.Content})
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"success":false}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
