// Package conversation interprets one user's inbound events against their
// current dialogue state and the game store.
package conversation

import (
	"context"
	"sync"
)

type State string

const (
	Idle                   State = "idle"
	AwaitingGameCode       State = "awaiting_game_code"
	AwaitingWish           State = "awaiting_wish"
	AwaitingMessageToSanta State = "awaiting_message_to_santa"
	AwaitingMessageToWard  State = "awaiting_message_to_ward"
)

func (s State) Valid() bool {
	switch s {
	case Idle, AwaitingGameCode, AwaitingWish, AwaitingMessageToSanta, AwaitingMessageToWard:
		return true
	}
	return false
}

// StateStore remembers each user's state. Unknown users are Idle.
type StateStore interface {
	Get(ctx context.Context, userID int64) (State, error)
	Set(ctx context.Context, userID int64, state State) error
}

// MemoryStateStore keeps states in process memory; they do not survive a
// restart.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[int64]State
}

var _ StateStore = (*MemoryStateStore)(nil)

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[int64]State)}
}

func (s *MemoryStateStore) Get(ctx context.Context, userID int64) (State, error) {
	if err := ctx.Err(); err != nil {
		return Idle, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[userID]; ok {
		return state, nil
	}
	return Idle, nil
}

func (s *MemoryStateStore) Set(ctx context.Context, userID int64, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == Idle {
		delete(s.states, userID)
		return nil
	}
	s.states[userID] = state
	return nil
}
