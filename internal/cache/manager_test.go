package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	mr := miniredis.RunT(t)

	config := Config{
		Addr:       mr.Addr(),
		KeyPrefix:  "test:",
		DefaultTTL: 1 * time.Minute,
	}

	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager_Unreachable(t *testing.T) {
	_, err := NewManager(Config{Addr: "127.0.0.1:1"}, zap.NewNop())
	assert.Error(t, err)
}

func TestManager_SetAndGet(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", time.Minute))

	value, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	// 键带前缀存储
	raw, err := mr.Get("test:k")
	require.NoError(t, err)
	assert.Equal(t, "v", raw)
}

func TestManager_GetNonExistent(t *testing.T) {
	_, manager := setupTestRedis(t)

	value, err := manager.Get(context.Background(), "non-existent")
	assert.True(t, IsCacheMiss(err))
	assert.Equal(t, "", value)
}

func TestManager_JSONRoundTripAndDelete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type snapshot struct {
		ID    string `json:"id"`
		Turns int    `json:"turns"`
	}

	require.NoError(t, manager.SetJSON(ctx, "room:1", snapshot{ID: "1", Turns: 3}, 0))

	var got snapshot
	require.NoError(t, manager.GetJSON(ctx, "room:1", &got))
	assert.Equal(t, snapshot{ID: "1", Turns: 3}, got)

	require.NoError(t, manager.Delete(ctx, "room:1"))
	assert.True(t, IsCacheMiss(manager.GetJSON(ctx, "room:1", &got)))

	assert.Error(t, manager.SetJSON(ctx, "bad", make(chan int), 0))
}

func TestManager_DefaultTTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "ttl", "value", 0))
	assert.Equal(t, time.Minute, mr.TTL("test:ttl"))

	mr.FastForward(2 * time.Minute)
	_, err := manager.Get(ctx, "ttl")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Sets(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.AddMember(ctx, "rooms", "a", "b"))
	require.NoError(t, manager.RemoveMember(ctx, "rooms", "a"))

	members, err := manager.Members(ctx, "rooms")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b"}, members)
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", 0), ErrClosed)
	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
}
