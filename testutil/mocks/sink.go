package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentroom/broadcast"
)

// RecordingSink 记录所有发布的事件
type RecordingSink struct {
	mu        sync.Mutex
	envelopes []broadcast.Envelope
	err       error
}

var _ broadcast.Sink = (*RecordingSink)(nil)

// NewRecordingSink 创建新的 RecordingSink
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// WithError 设置 Publish 返回的错误，事件仍会被记录
func (s *RecordingSink) WithError(err error) *RecordingSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

func (s *RecordingSink) Publish(_ context.Context, env broadcast.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = append(s.envelopes, env)
	return s.err
}

// Envelopes 返回已记录事件的副本
func (s *RecordingSink) Envelopes() []broadcast.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]broadcast.Envelope(nil), s.envelopes...)
}

// OfType 返回指定类型的事件
func (s *RecordingSink) OfType(typ broadcast.EventType) []broadcast.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []broadcast.Envelope
	for _, e := range s.envelopes {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
