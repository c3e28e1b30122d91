// Package types defines the shared types used across all voxrelay packages.
//
// These types form the lingua franca between providers, the session store, and
// the relay orchestrator. Each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "fmt"

// Speaker identifies who produced a conversation [Turn].
type Speaker int

const (
	// SpeakerUser is the human on the other end of the microphone.
	SpeakerUser Speaker = iota + 1

	// SpeakerAgent is the voice agent replying through the language model.
	SpeakerAgent
)

// Provider-facing message roles produced by [Speaker.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Role returns the LLM wire role for s. Backends that use a different name for
// the agent role (Gemini calls it "model") translate "assistant" themselves.
// An invalid Speaker panics.
func (s Speaker) Role() string {
	switch s {
	case SpeakerUser:
		return RoleUser
	case SpeakerAgent:
		return RoleAssistant
	}
	panic(fmt.Sprintf("types: invalid speaker %d", int(s)))
}

// String returns the caller-facing speaker name.
func (s Speaker) String() string {
	switch s {
	case SpeakerUser:
		return "user"
	case SpeakerAgent:
		return "assistant"
	default:
		return "unknown"
	}
}

// Turn is one immutable utterance within a session. Order within a session is
// chronological and is the only context handed to the language model.
type Turn struct {
	Speaker Speaker
	Content string
}

// Message is a single LLM conversation message.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Messages converts a turn history into LLM wire messages. It is the single
// serialization point between the session store and the LLM providers.
func Messages(history []Turn) []Message {
	out := make([]Message, 0, len(history))
	for _, t := range history {
		out = append(out, Message{Role: t.Speaker.Role(), Content: t.Content})
	}
	return out
}

// Audio is a recorded speech payload as uploaded by the client. Data is
// forwarded to the STT provider unchanged.
type Audio struct {
	// Data holds the raw encoded audio bytes (webm, ogg, wav, mp3, ...).
	Data []byte

	// ContentType is the MIME type reported by the uploader. May be empty.
	ContentType string

	// Filename is the original upload filename. May be empty.
	Filename string
}

// VoiceProfile describes a TTS voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g. "en-US-charles").
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string
}
