// Package session keeps short-lived per-conversation routing state in Redis,
// so an "awaiting free-text prompt" flag survives process restarts and is
// shared across replicas.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateAwaitingAIPrompt marks a chat whose next free-text message is an AI
// estimation request rather than a menu command.
const StateAwaitingAIPrompt = "awaiting_ai_prompt"

const defaultTTL = 30 * time.Minute

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, ttl: defaultTTL}
}

func key(chatID string) string { return "session:" + chatID }

func (s *Store) Set(ctx context.Context, chatID, state string) error {
	return s.rdb.Set(ctx, key(chatID), state, s.ttl).Err()
}

// Get returns the chat's state, or "" when none is set.
func (s *Store) Get(ctx context.Context, chatID string) (string, error) {
	state, err := s.rdb.Get(ctx, key(chatID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return state, err
}

func (s *Store) Clear(ctx context.Context, chatID string) error {
	return s.rdb.Del(ctx, key(chatID)).Err()
}
