package memory

import (
	"context"
	"sync"

	"quiz-nexus-service/internal/app"
	"quiz-nexus-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore.
type AttemptStore struct {
	mu     sync.RWMutex
	states map[app.AttemptKey]domain.AttemptState
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		states: make(map[app.AttemptKey]domain.AttemptState),
	}
}

func (s *AttemptStore) Load(_ context.Context, key app.AttemptKey) (domain.AttemptState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[key]
	if !ok {
		return domain.AttemptState{}, false, nil
	}
	return copyState(state), true, nil
}

func (s *AttemptStore) Save(_ context.Context, key app.AttemptKey, state domain.AttemptState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = copyState(state)
	return nil
}

func (s *AttemptStore) Delete(_ context.Context, key app.AttemptKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}

func copyState(state domain.AttemptState) domain.AttemptState {
	answers := make(map[int]int, len(state.Answers))
	for k, v := range state.Answers {
		answers[k] = v
	}
	state.Answers = answers
	return state
}
