package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentroom/persona"
	"github.com/BaSui01/agentroom/rng"
	"github.com/BaSui01/agentroom/types"
)

// mockGenerator 可编程的生成器，每个方法由函数字段驱动
type mockGenerator struct {
	thinkingFn     func(ctx context.Context) (string, error)
	introductionFn func(ctx context.Context) (string, error)
	dialogueFn     func(ctx context.Context) (string, error)
}

func (m *mockGenerator) Thinking(ctx context.Context, _ persona.Descriptor, _ []string, _, _ string) (string, error) {
	return m.thinkingFn(ctx)
}

func (m *mockGenerator) Introduction(ctx context.Context, _ persona.Descriptor, _ []string) (string, error) {
	return m.introductionFn(ctx)
}

func (m *mockGenerator) DialogueTurn(ctx context.Context, _ persona.Descriptor, _ string, _ []Line) (string, error) {
	return m.dialogueFn(ctx)
}

type recordedCall struct {
	kind    Kind
	outcome string
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (o *recordingObserver) ObserveGeneration(kind Kind, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, recordedCall{kind, outcome})
}

func fastConfig() ResilientConfig {
	return ResilientConfig{Timeout: 50 * time.Millisecond, MaxRetries: 2, RetryDelay: time.Millisecond}
}

var alice = persona.Descriptor{ID: "alice", Name: "Alice"}

// =============================================================================
// 🧪 Resilient
// =============================================================================

func TestResilient_PassesThrough(t *testing.T) {
	obs := &recordingObserver{}
	gen := &mockGenerator{
		thinkingFn:     func(context.Context) (string, error) { return "  pondering  ", nil },
		introductionFn: func(context.Context) (string, error) { return "hello!", nil },
		dialogueFn:     func(context.Context) (string, error) { return "let's talk", nil },
	}
	r := NewResilient(gen, fastConfig(), zaptest.NewLogger(t), WithCallObserver(obs))
	ctx := context.Background()

	assert.Equal(t, "pondering", r.Thinking(ctx, alice, nil, "", ""))
	assert.Equal(t, "hello!", r.Introduction(ctx, alice, nil))
	assert.Equal(t, "let's talk", r.DialogueTurn(ctx, alice, "", nil))

	assert.Equal(t, []recordedCall{
		{KindThinking, OutcomeOK},
		{KindIntroduction, OutcomeOK},
		{KindDialogue, OutcomeOK},
	}, obs.calls)
}

func TestResilient_Fallbacks(t *testing.T) {
	obs := &recordingObserver{}
	failing := func(context.Context) (string, error) { return "", errors.New("boom") }
	empty := func(context.Context) (string, error) { return "   ", nil }
	gen := &mockGenerator{thinkingFn: failing, introductionFn: empty, dialogueFn: failing}
	r := NewResilient(gen, fastConfig(), nil, WithCallObserver(obs))
	ctx := context.Background()

	assert.Equal(t, FallbackThinking, r.Thinking(ctx, alice, nil, "", ""))
	assert.Equal(t, FallbackIntroduction(alice), r.Introduction(ctx, alice, nil))
	assert.Equal(t, FallbackDialogue, r.DialogueTurn(ctx, alice, "", nil))
	assert.Contains(t, FallbackIntroduction(alice), "Alice")

	for _, c := range obs.calls {
		assert.Equal(t, OutcomeFallback, c.outcome)
	}
}

func TestResilient_TimeoutFallsBack(t *testing.T) {
	gen := &mockGenerator{dialogueFn: func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	r := NewResilient(gen, fastConfig(), nil)

	start := time.Now()
	assert.Equal(t, FallbackDialogue, r.DialogueTurn(context.Background(), alice, "", nil))
	assert.Less(t, time.Since(start), time.Second)
}

func TestResilient_RetriesRetryableErrors(t *testing.T) {
	attempts := 0
	gen := &mockGenerator{dialogueFn: func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", types.NewError(types.ErrRateLimited, "slow down").WithRetryable(true)
		}
		return "finally", nil
	}}
	r := NewResilient(gen, fastConfig(), nil)

	assert.Equal(t, "finally", r.DialogueTurn(context.Background(), alice, "", nil))
	assert.Equal(t, 3, attempts)
}

func TestResilient_DoesNotRetryPermanentErrors(t *testing.T) {
	attempts := 0
	gen := &mockGenerator{dialogueFn: func(context.Context) (string, error) {
		attempts++
		return "", types.NewError(types.ErrGenerationFailed, "bad request")
	}}
	r := NewResilient(gen, fastConfig(), nil)

	assert.Equal(t, FallbackDialogue, r.DialogueTurn(context.Background(), alice, "", nil))
	assert.Equal(t, 1, attempts)
}

func TestResilient_RateLimitHonoursContext(t *testing.T) {
	gen := &mockGenerator{dialogueFn: func(context.Context) (string, error) { return "ok", nil }}
	cfg := fastConfig()
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	r := NewResilient(gen, cfg, nil)

	assert.Equal(t, "ok", r.DialogueTurn(context.Background(), alice, "", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Equal(t, FallbackDialogue, r.DialogueTurn(ctx, alice, "", nil))
}

// =============================================================================
// 🧪 历史截取
// =============================================================================

func TestFormatHistory(t *testing.T) {
	history := []Line{
		{Speaker: "Alice", Text: strings.Repeat("a", 40)},
		{Speaker: "Bob", Text: strings.Repeat("b", 40)},
		{Speaker: "Cara", Text: strings.Repeat("c", 40)},
	}

	all := FormatHistory(history, nil, 0)
	assert.Equal(t, 3, strings.Count(all, "\n")+1)
	assert.True(t, strings.HasPrefix(all, "Alice: "))

	// 每行约 11 个 token，预算只够最近两行
	recent := FormatHistory(history, nil, 25)
	assert.Equal(t, "Bob: "+strings.Repeat("b", 40)+"\nCara: "+strings.Repeat("c", 40), recent)

	// 预算再小也保留最后一行
	assert.Equal(t, []Line{history[2]}, Trim(history, nil, 1))
	assert.Empty(t, FormatHistory(nil, nil, 10))
}

// =============================================================================
// 🧪 TemplateGenerator
// =============================================================================

func TestTemplateGenerator(t *testing.T) {
	g := NewTemplateGenerator(rng.New(3))
	ctx := context.Background()
	warm := persona.Descriptor{ID: "w", Name: "Wren", Traits: persona.Traits{Empathy: 90, Sociability: 80}}

	intro, err := g.Introduction(ctx, warm, []string{"travel", "food"})
	require.NoError(t, err)
	assert.Contains(t, intro, "Wren")
	assert.Contains(t, intro, "travel and food")

	thinking, err := g.Thinking(ctx, warm, []string{"travel"}, "", "")
	require.NoError(t, err)
	assert.Contains(t, thinking, "travel")

	line, err := g.DialogueTurn(ctx, warm, "Weekend trip to Jeju", nil)
	require.NoError(t, err)
	assert.Contains(t, line, "Weekend trip to Jeju")
	assert.True(t, startsWithAny(line, warmOpeners), line)

	reply, err := g.DialogueTurn(ctx, warm, "Weekend trip", []Line{{Speaker: "Bob", Text: "The ferry is the best part"}})
	require.NoError(t, err)
	assert.Contains(t, reply, "Bob")
}

func startsWithAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
