// Package ctxkeys 定义跨包传递的请求级上下文值：HTTP 请求 ID、
// 编排运行 ID 与房间 ID，并提供转换为日志字段的辅助函数。
package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	runIDKey     contextKey = "run_id"
	roomIDKey    contextKey = "room_id"
)

// WithRequestID 设置 HTTP 请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 获取 HTTP 请求 ID
func RequestID(ctx context.Context) (string, bool) {
	return lookup(ctx, requestIDKey)
}

// WithRunID 设置编排运行 ID
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID 获取编排运行 ID
func RunID(ctx context.Context) (string, bool) {
	return lookup(ctx, runIDKey)
}

// WithRoomID 设置房间 ID
func WithRoomID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, roomIDKey, id)
}

// RoomID 获取房间 ID
func RoomID(ctx context.Context) (string, bool) {
	return lookup(ctx, roomIDKey)
}

// Fields 返回上下文中已设置的 ID 对应的日志字段
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	for _, key := range []contextKey{requestIDKey, runIDKey, roomIDKey} {
		if v, ok := lookup(ctx, key); ok {
			fields = append(fields, zap.String(string(key), v))
		}
	}
	return fields
}

func lookup(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
