package tokenizer

import (
	"strings"

	"go.uber.org/zap"
)

// Tokenizer 是统一的 Token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Name 返回分词器的名称.
	Name() string
}

// ForModel 为模型选择分词器：OpenAI 家族模型使用 tiktoken，
// 其余模型使用估算器；tiktoken 初始化失败时自动回退到估算器。
func ForModel(model string, logger *zap.Logger) Tokenizer {
	estimator := NewEstimatorTokenizer()
	if _, ok := lookupEncoding(model); !ok && !strings.HasPrefix(model, "gpt-") {
		return estimator
	}
	return NewFallback(NewTiktokenTokenizer(model), estimator, logger)
}

// Fallback 优先使用 primary，出错时改用 secondary 并记录一次告警.
type Fallback struct {
	primary   Tokenizer
	secondary Tokenizer
	logger    *zap.Logger
}

// NewFallback 创建回退分词器.
func NewFallback(primary, secondary Tokenizer, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With(zap.String("component", "tokenizer")),
	}
}

func (f *Fallback) CountTokens(text string) (int, error) {
	n, err := f.primary.CountTokens(text)
	if err == nil {
		return n, nil
	}
	f.logger.Debug("primary tokenizer failed, using fallback",
		zap.String("primary", f.primary.Name()),
		zap.Error(err),
	)
	return f.secondary.CountTokens(text)
}

func (f *Fallback) Name() string {
	return f.primary.Name() + "|" + f.secondary.Name()
}
