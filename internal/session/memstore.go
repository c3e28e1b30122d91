package session

import (
	"context"
	"sync"

	"github.com/MrWong99/voxrelay/pkg/types"
)

// MemStore implements [Store] with a process-local map.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string][]types.Turn
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string][]types.Turn)}
}

// Append implements [Store].
func (s *MemStore) Append(_ context.Context, sessionID string, turns ...types.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], turns...)
	return nil
}

// History implements [Store].
func (s *MemStore) History(_ context.Context, sessionID string) ([]types.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sessions[sessionID]
	out := make([]types.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Len returns the number of sessions that hold at least one turn.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var _ Store = (*MemStore)(nil)
