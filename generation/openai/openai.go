// Package openai implements generation.Generator on the OpenAI Chat
// Completions API. Each call renders the persona into a system prompt and the
// request into a single user message.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BaSui01/agentroom/generation"
	"github.com/BaSui01/agentroom/internal/tokenizer"
	"github.com/BaSui01/agentroom/persona"
	"github.com/BaSui01/agentroom/types"
)

// Options configure the adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	HistoryTokenBudget  int
}

// Generator calls the Chat Completions API.
type Generator struct {
	client *openai.Client
	opts   Options
	tok    tokenizer.Tokenizer
}

// NewGenerator creates a generator with default options and a client
// configured from the environment (OPENAI_API_KEY, OPENAI_BASE_URL) plus
// reqOpts.
func NewGenerator(reqOpts ...option.RequestOption) *Generator {
	client := openai.NewClient(reqOpts...)
	return NewGeneratorFromClient(&client)
}

// NewGeneratorFromClient creates a generator from an existing client.
func NewGeneratorFromClient(client *openai.Client, optFns ...func(o *Options)) *Generator {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.9,
		MaxCompletionTokens: 300,
		HistoryTokenBudget:  1500,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generator{client: client, opts: opts, tok: tokenizer.ForModel(opts.Model, nil)}
}

func systemPrompt(p persona.Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a persona taking part in a casual group conversation.\n", p.DisplayName())
	if p.Description != "" {
		fmt.Fprintf(&b, "About you: %s\n", p.Description)
	}
	t := p.Traits
	fmt.Fprintf(&b, "Personality (0-100): empathy %d, humor %d, sociability %d, creativity %d, knowledge %d.\n",
		t.Empathy, t.Humor, t.Sociability, t.Creativity, t.Knowledge)
	if len(p.Keywords) > 0 {
		fmt.Fprintf(&b, "You care about: %s.\n", strings.Join(p.Keywords, ", "))
	}
	b.WriteString("Stay in character, reply in one or two short sentences and never mention being an AI.")
	return b.String()
}

func (g *Generator) complete(ctx context.Context, p persona.Descriptor, user string, maxTokens int64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(p)),
			openai.UserMessage(user),
		},
		Model:               g.opts.Model,
		Temperature:         openai.Float(g.opts.Temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", types.NewError(types.ErrGenerationEmpty, "no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// classify maps API failures to coded errors; 429 and 5xx are retryable.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return types.NewError(types.ErrRateLimited, "openai rate limited").WithCause(err).WithRetryable(true)
		case apiErr.StatusCode >= 500:
			return types.NewError(types.ErrGenerationFailed, "openai server error").WithCause(err).WithRetryable(true)
		}
		return types.NewError(types.ErrGenerationFailed, "openai request rejected").WithCause(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, "openai request timed out").WithCause(err)
	}
	return types.NewError(types.ErrGenerationFailed, "openai request failed").WithCause(err)
}

func (g *Generator) Thinking(ctx context.Context, p persona.Descriptor, topics []string, lastMessage, history string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Topics: %s\n", strings.Join(topics, ", "))
	if history != "" {
		fmt.Fprintf(&b, "Conversation so far:\n%s\n", history)
	}
	if lastMessage != "" {
		fmt.Fprintf(&b, "Last message: %s\n", lastMessage)
	}
	b.WriteString("Write your private thought before replying, in under 15 words.")
	return g.complete(ctx, p, b.String(), 60)
}

func (g *Generator) Introduction(ctx context.Context, p persona.Descriptor, topics []string) (string, error) {
	user := fmt.Sprintf("You are joining a conversation about %s. Greet everyone and introduce yourself briefly.",
		strings.Join(topics, ", "))
	return g.complete(ctx, p, user, 80)
}

func (g *Generator) DialogueTurn(ctx context.Context, p persona.Descriptor, scopeContent string, history []generation.Line) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "The post being discussed:\n%s\n", scopeContent)
	if text := generation.FormatHistory(history, g.tok, g.opts.HistoryTokenBudget); text != "" {
		fmt.Fprintf(&b, "Conversation so far:\n%s\n", text)
	}
	b.WriteString("Write your next message.")
	return g.complete(ctx, p, b.String(), g.opts.MaxCompletionTokens)
}

var _ generation.Generator = (*Generator)(nil)
