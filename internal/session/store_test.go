package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb), mr
}

func TestStore_SetGetClear(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	state, err := s.Get(ctx, "777")
	require.NoError(t, err)
	assert.Empty(t, state, "no state set yet")

	require.NoError(t, s.Set(ctx, "777", StateAwaitingAIPrompt))
	state, err = s.Get(ctx, "777")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingAIPrompt, state)

	require.NoError(t, s.Clear(ctx, "777"))
	state, err = s.Get(ctx, "777")
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestStore_StateIsPerChat(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "777", StateAwaitingAIPrompt))
	state, err := s.Get(ctx, "888")
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestStore_StateExpires(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "777", StateAwaitingAIPrompt))
	mr.FastForward(defaultTTL * 2)

	state, err := s.Get(ctx, "777")
	require.NoError(t, err)
	assert.Empty(t, state, "stale prompts must not capture unrelated messages")
}
