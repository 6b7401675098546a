package generation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentroom/internal/ctxkeys"
	"github.com/BaSui01/agentroom/persona"
	"github.com/BaSui01/agentroom/types"
)

// Outcome of a resilient generation call.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
)

// CallObserver receives one notification per resilient call.
type CallObserver interface {
	ObserveGeneration(kind Kind, outcome string, d time.Duration)
}

// ResilientConfig 生成调用弹性配置
type ResilientConfig struct {
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// 每秒允许的调用数，0 表示不限流
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`

	// 令牌桶容量
	Burst int `yaml:"burst" json:"burst"`

	// 可重试错误的最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 首次重试延迟，之后每次翻倍
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// DefaultResilientConfig 返回默认弹性配置
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Timeout:           20 * time.Second,
		RequestsPerSecond: 5,
		Burst:             10,
		MaxRetries:        1,
		RetryDelay:        200 * time.Millisecond,
	}
}

// Resilient wraps a Generator so that every call returns usable text.
// Errors, timeouts and empty results are replaced by the fallbacks.
type Resilient struct {
	gen      Generator
	cfg      ResilientConfig
	limiter  *rate.Limiter
	observer CallObserver
	logger   *zap.Logger
}

// ResilientOption configures a Resilient.
type ResilientOption func(*Resilient)

// WithCallObserver reports every call outcome to o.
func WithCallObserver(o CallObserver) ResilientOption {
	return func(r *Resilient) { r.observer = o }
}

// NewResilient wraps gen.
func NewResilient(gen Generator, cfg ResilientConfig, logger *zap.Logger, opts ...ResilientOption) *Resilient {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	r := &Resilient{
		gen:     gen,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger.With(zap.String("component", "generation")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Thinking never fails; it returns FallbackThinking instead.
func (r *Resilient) Thinking(ctx context.Context, p persona.Descriptor, topics []string, lastMessage, history string) string {
	return r.call(ctx, KindThinking, p, FallbackThinking, func(ctx context.Context) (string, error) {
		return r.gen.Thinking(ctx, p, topics, lastMessage, history)
	})
}

// Introduction never fails; it returns FallbackIntroduction instead.
func (r *Resilient) Introduction(ctx context.Context, p persona.Descriptor, topics []string) string {
	return r.call(ctx, KindIntroduction, p, FallbackIntroduction(p), func(ctx context.Context) (string, error) {
		return r.gen.Introduction(ctx, p, topics)
	})
}

// DialogueTurn never fails; it returns FallbackDialogue instead.
func (r *Resilient) DialogueTurn(ctx context.Context, p persona.Descriptor, scopeContent string, history []Line) string {
	return r.call(ctx, KindDialogue, p, FallbackDialogue, func(ctx context.Context) (string, error) {
		return r.gen.DialogueTurn(ctx, p, scopeContent, history)
	})
}

func (r *Resilient) call(ctx context.Context, kind Kind, p persona.Descriptor, fallback string, fn func(context.Context) (string, error)) string {
	start := time.Now()
	text, err := r.attempt(ctx, fn)
	if err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			err = types.NewError(types.ErrGenerationEmpty, "generator returned empty text")
		}
	}

	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFallback
		text = fallback
		fields := append(ctxkeys.Fields(ctx),
			zap.String("kind", string(kind)),
			zap.String("persona_id", p.ID),
			zap.Error(err),
		)
		r.logger.Warn("generation failed, using fallback", fields...)
	}
	if r.observer != nil {
		r.observer.ObserveGeneration(kind, outcome, time.Since(start))
	}
	return text
}

// attempt runs fn with rate limiting, a per-call timeout and bounded retries
// of retryable errors.
func (r *Resilient) attempt(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	delay := r.cfg.RetryDelay
	var lastErr error
	for i := 0; i <= r.cfg.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return "", types.NewError(types.ErrRateLimited, "generation rate limit wait aborted").WithCause(err)
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		}
		text, err := fn(callCtx)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil || !types.IsRetryable(err) {
			break
		}
		r.logger.Debug("retrying generation", zap.Int("attempt", i+1), zap.Error(err))
	}
	return "", lastErr
}
