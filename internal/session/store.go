// Package session holds per-session conversation history.
//
// A session is an opaque string key mapped to an ordered, append-only list of
// [types.Turn] values. Sessions are created lazily on their first append and
// live for the lifetime of the process; there is no eviction, size cap or
// persistence across restarts.
package session

import (
	"context"

	"github.com/MrWong99/voxrelay/pkg/types"
)

// Store is the conversation history backing the relay. It is constructed once
// at startup and injected into the orchestrator.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append adds turns to the end of the session's history as one unit: a
	// concurrent History call observes either none or all of them. Appending
	// to an unknown session creates it.
	Append(ctx context.Context, sessionID string, turns ...types.Turn) error

	// History returns a copy of the session's turns in chronological order.
	// An unknown session yields an empty, non-nil slice.
	History(ctx context.Context, sessionID string) ([]types.Turn, error)
}
