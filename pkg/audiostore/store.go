// Package audiostore defines where synthesized audio is published when a TTS
// backend returns raw bytes instead of a hosted URL.
//
// The relay's response contract carries an audio URL, so byte-returning
// providers (ElevenLabs, Coqui) hand their output to a Store and return the
// URL it yields. Implementations must be safe for concurrent use.
package audiostore

import (
	"context"
	"mime"
	"path"
	"time"

	"github.com/google/uuid"
)

// Store publishes an audio payload and returns a URL a browser can fetch.
type Store interface {
	// Put stores data under a fresh, unique key and returns its retrieval URL.
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}

// NewKey returns a unique object key of the form "2026/10/16/<uuid>.mp3".
// prefix, when non-empty, is prepended as a directory.
func NewKey(prefix, contentType string, now time.Time) string {
	key := path.Join(now.UTC().Format("2006/01/02"), uuid.NewString()+Extension(contentType))
	if prefix != "" {
		key = path.Join(prefix, key)
	}
	return key
}

// Extension maps an audio MIME type to a file extension. Unknown types get ".bin".
func Extension(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = contentType
	}
	switch mt {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	case "audio/flac":
		return ".flac"
	default:
		return ".bin"
	}
}
