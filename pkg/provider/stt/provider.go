// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (e.g., AssemblyAI,
// Deepgram, OpenAI Whisper, or Google Cloud Speech) and exposes a uniform
// request/response interface: one recorded utterance in, its transcript out.
// Audio is forwarded to the backend as-is; providers never validate or
// transcode the payload.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/voxrelay/pkg/types"
)

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe sends the recorded audio to the backend and returns the
	// recognised text. An empty string with a nil error means the backend
	// recognised no speech; callers decide whether that is a failure.
	//
	// Returns an error if the request cannot be completed (authentication
	// failure, transport error, non-success status, or ctx cancelled).
	Transcribe(ctx context.Context, audio types.Audio) (string, error)
}

// Unconfigured returns a [Provider] whose every call fails with err. It stands
// in for a backend that could not be constructed (typically a missing API key)
// so that the failure surfaces when the pipeline reaches the STT stage rather
// than at startup.
func Unconfigured(err error) Provider {
	return unconfigured{err: err}
}

type unconfigured struct{ err error }

func (u unconfigured) Transcribe(context.Context, types.Audio) (string, error) {
	return "", u.err
}
