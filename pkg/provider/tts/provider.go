// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., Murf or ElevenLabs)
// and turns a complete reply text into a hosted, playable audio file. The
// provider returns the retrieval URL of that file; backends that only return
// raw audio bytes publish them through an audio store first.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/voxrelay/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice and returns the URL of the
	// resulting audio file. A zero voice.ID selects the provider's default voice.
	//
	// Returns an error if the backend rejects the request, responds without an
	// audio reference, or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (string, error)
}

// Unconfigured returns a [Provider] whose every call fails with err, so that a
// backend which could not be constructed fails at the TTS stage instead of at
// startup.
func Unconfigured(err error) Provider {
	return unconfigured{err: err}
}

type unconfigured struct{ err error }

func (u unconfigured) Synthesize(context.Context, string, types.VoiceProfile) (string, error) {
	return "", u.err
}
