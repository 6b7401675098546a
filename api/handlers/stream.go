package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/api"
	"github.com/BaSui01/agentroom/broadcast"
)

// =============================================================================
// 📡 WebSocket 流 Handler
// =============================================================================

// Subscriber is the subscription side of broadcast.Hub.
type Subscriber interface {
	Subscribe(buffer int, filter broadcast.Filter) (<-chan broadcast.Envelope, func())
}

// StreamHandler streams broadcast envelopes to websocket clients. The socket
// is write-only; client frames other than control frames close it.
type StreamHandler struct {
	hub          Subscriber
	buffer       int
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewStreamHandler creates a handler whose subscriptions buffer up to buffer
// envelopes.
func NewStreamHandler(hub Subscriber, buffer int, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		hub:          hub,
		buffer:       buffer,
		writeTimeout: 10 * time.Second,
		logger:       logger.With(zap.String("component", "stream")),
	}
}

// HandleStream 处理 GET /ws?scope=...，scope 为空时接收全部房间
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")

	// 流式连接不受服务器写超时限制
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	var filter broadcast.Filter
	if scope != "" {
		filter = broadcast.ScopeFilter(scope)
	}
	events, cancel := h.hub.Subscribe(h.buffer, filter)
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	if err := h.write(ctx, conn, api.StreamHello{ScopeID: scope, At: time.Now()}); err != nil {
		return
	}

	h.logger.Debug("stream opened", zap.String("scope_id", scope))
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, env); err != nil {
				h.logger.Debug("stream write failed", zap.String("scope_id", scope), zap.Error(err))
				return
			}
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
