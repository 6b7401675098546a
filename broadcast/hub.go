// Package broadcast hands conversation output to observers. The orchestrator
// publishes to a Sink; Hub is the in-process Sink that fans envelopes out to
// subscribers such as websocket connections.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType 广播事件类型
type EventType string

const (
	EventMessage    EventType = "message"
	EventMembership EventType = "membership"
	EventHandover   EventType = "handover"
	EventRunStarted EventType = "run_started"
	EventRunEnded   EventType = "run_ended"
)

// Envelope is one published event.
type Envelope struct {
	Type    EventType `json:"type"`
	RoomID  string    `json:"room_id"`
	ScopeID string    `json:"scope_id"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// Sink receives conversation output. Delivery is best effort.
type Sink interface {
	Publish(ctx context.Context, env Envelope) error
}

// Filter selects the envelopes a subscriber receives; nil accepts all.
type Filter func(Envelope) bool

// ScopeFilter accepts envelopes of one scope.
func ScopeFilter(scopeID string) Filter {
	return func(e Envelope) bool { return e.ScopeID == scopeID }
}

type subscriber struct {
	ch     chan Envelope
	filter Filter
}

// Hub fans envelopes out to subscribers. A subscriber whose buffer is full
// misses the envelope; publishers never block.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*subscriber
	seq     atomic.Int64
	dropped atomic.Int64
	closed  bool
	logger  *zap.Logger
}

// NewHub 创建广播中心
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]*subscriber),
		logger: logger.With(zap.String("component", "broadcast")),
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel function unsubscribes and closes the channel.
func (h *Hub) Subscribe(buffer int, filter Filter) (<-chan Envelope, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Envelope, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := fmt.Sprintf("sub-%d", h.seq.Add(1))
	h.subs[id] = &subscriber{ch: ch, filter: filter}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if s, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(s.ch)
			}
		})
	}
}

// Publish delivers env to every matching subscriber without blocking.
func (h *Hub) Publish(_ context.Context, env Envelope) error {
	if env.At.IsZero() {
		env.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for id, s := range h.subs {
		if s.filter != nil && !s.filter(env) {
			continue
		}
		select {
		case s.ch <- env:
		default:
			h.dropped.Add(1)
			h.logger.Debug("subscriber buffer full, envelope dropped",
				zap.String("subscriber", id),
				zap.String("type", string(env.Type)),
			)
		}
	}
	return nil
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because of full buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close closes every subscriber channel. Later publishes return ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
}

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("broadcast hub closed")

var _ Sink = (*Hub)(nil)
