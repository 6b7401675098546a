// MockGenerator 的文本生成器测试模拟实现。
//
// 支持固定响应、按序脚本与错误注入场景。
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/agentroom/generation"
	"github.com/BaSui01/agentroom/persona"
)

// --- MockGenerator 结构 ---

// MockGenerator 是 generation.Generator 的模拟实现
type MockGenerator struct {
	mu sync.Mutex

	// 响应配置
	thinking     string
	introduction string
	dialogue     []string
	err          error

	// 行为控制
	failAfter int // 在第 N 次调用后失败，0 表示不启用
	callCount int

	// 调用记录
	calls []MockGeneratorCall
}

// MockGeneratorCall 记录单次调用
type MockGeneratorCall struct {
	Kind      generation.Kind
	PersonaID string
	Topics    []string
	History   []generation.Line
}

var _ generation.Generator = (*MockGenerator)(nil)

// --- 构造函数和 Builder 方法 ---

// NewMockGenerator 创建新的 MockGenerator
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		thinking:     "Mock thinking",
		introduction: "Mock introduction",
	}
}

// WithThinking 设置固定 thinking 响应
func (m *MockGenerator) WithThinking(text string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thinking = text
	return m
}

// WithIntroduction 设置固定自我介绍响应
func (m *MockGenerator) WithIntroduction(text string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.introduction = text
	return m
}

// WithDialogue 设置按序返回的对话脚本，用尽后循环。
// 未设置时返回 "<persona id> says #<n>"。
func (m *MockGenerator) WithDialogue(lines ...string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialogue = lines
	return m
}

// WithError 设置所有调用返回的错误
func (m *MockGenerator) WithError(err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFailAfter 设置在第 n 次调用后开始返回错误
func (m *MockGenerator) WithFailAfter(n int, err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.err = err
	return m
}

// --- generation.Generator 实现 ---

func (m *MockGenerator) Thinking(ctx context.Context, p persona.Descriptor, topics []string, _ string, _ string) (string, error) {
	return m.respond(ctx, MockGeneratorCall{Kind: generation.KindThinking, PersonaID: p.ID, Topics: topics}, func(int) string {
		return m.thinking
	})
}

func (m *MockGenerator) Introduction(ctx context.Context, p persona.Descriptor, topics []string) (string, error) {
	return m.respond(ctx, MockGeneratorCall{Kind: generation.KindIntroduction, PersonaID: p.ID, Topics: topics}, func(int) string {
		return m.introduction
	})
}

func (m *MockGenerator) DialogueTurn(ctx context.Context, p persona.Descriptor, _ string, history []generation.Line) (string, error) {
	call := MockGeneratorCall{Kind: generation.KindDialogue, PersonaID: p.ID, History: append([]generation.Line(nil), history...)}
	return m.respond(ctx, call, func(n int) string {
		if len(m.dialogue) == 0 {
			return fmt.Sprintf("%s says #%d", p.ID, n)
		}
		return m.dialogue[(n-1)%len(m.dialogue)]
	})
}

func (m *MockGenerator) respond(ctx context.Context, call MockGeneratorCall, text func(n int) string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.calls = append(m.calls, call)

	if m.err != nil && (m.failAfter == 0 || m.callCount > m.failAfter) {
		return "", m.err
	}
	n := 0
	for _, c := range m.calls {
		if c.Kind == call.Kind {
			n++
		}
	}
	return text(n), nil
}

// --- 调用记录 ---

// Calls 返回调用记录的副本
func (m *MockGenerator) Calls() []MockGeneratorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockGeneratorCall(nil), m.calls...)
}

// CallCount 返回指定类型的调用次数
func (m *MockGenerator) CallCount(kind generation.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Reset 清空调用记录
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
}
