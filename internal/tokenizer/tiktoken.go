package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer 为 OpenAI 家族模型封装 tiktoken.
type TiktokenTokenizer struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// modelEncodings 将模型名称映射到其 tiktoken 编码.
var modelEncodings = map[string]string{
	"gpt-4.1":       "o200k_base",
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

func lookupEncoding(model string) (string, bool) {
	if enc, ok := modelEncodings[model]; ok {
		return enc, true
	}
	// 最长前缀匹配
	best := ""
	for prefix := range modelEncodings {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return "", false
	}
	return modelEncodings[best], true
}

// NewTiktokenTokenizer 为给定模型创建 tiktoken 分词器，未知模型默认 cl100k_base.
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	enc, ok := lookupEncoding(model)
	if !ok {
		enc = "cl100k_base"
	}
	return &TiktokenTokenizer{encoding: enc}
}

// init 延迟初始化 tiktoken 编码（首次使用时可能下载数据）.
func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
