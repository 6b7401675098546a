package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestIDs_RoundTrip(t *testing.T) {
	ctx := context.Background()
	_, ok := RunID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithRoomID(ctx, "room-1")

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
	id, _ = RunID(ctx)
	assert.Equal(t, "run-1", id)
	id, _ = RoomID(ctx)
	assert.Equal(t, "room-1", id)
}

func TestIDs_EmptyIsUnset(t *testing.T) {
	_, ok := RoomID(WithRoomID(context.Background(), ""))
	assert.False(t, ok)
}

func TestFields(t *testing.T) {
	assert.Empty(t, Fields(context.Background()))

	ctx := WithRoomID(WithRunID(context.Background(), "run-1"), "room-1")
	assert.Equal(t, []zap.Field{
		zap.String("run_id", "run-1"),
		zap.String("room_id", "room-1"),
	}, Fields(ctx))
}
