package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-nexus-service/internal/app"
	"quiz-nexus-service/internal/domain"
)

// AttemptStore keeps in-flight attempt progress in Redis so a user can resume after a
// reload or on another instance. Values are JSON under quiz:attempt:{quizID}:{userID}.
type AttemptStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAttemptStore returns a store whose keys expire after ttl of inactivity. A zero ttl
// keeps keys until the attempt finishes.
func NewAttemptStore(client *redis.Client, ttl time.Duration) *AttemptStore {
	return &AttemptStore{client: client, ttl: ttl}
}

func (s *AttemptStore) Load(ctx context.Context, key app.AttemptKey) (domain.AttemptState, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AttemptState{}, false, nil
	}
	if err != nil {
		return domain.AttemptState{}, false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	var state domain.AttemptState
	if err := json.Unmarshal(raw, &state); err != nil {
		// A corrupt entry is treated as absent; the next save overwrites it.
		return domain.AttemptState{}, false, nil
	}
	if state.Answers == nil {
		state.Answers = map[int]int{}
	}
	return state, true, nil
}

func (s *AttemptStore) Save(ctx context.Context, key app.AttemptKey, state domain.AttemptState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *AttemptStore) Delete(ctx context.Context, key app.AttemptKey) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *AttemptStore) key(key app.AttemptKey) string {
	return "quiz:attempt:" + key.QuizID + ":" + key.UserID
}
