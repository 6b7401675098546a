package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentroom/persona"
	"github.com/BaSui01/agentroom/rng"
)

// TemplateGenerator builds text from canned templates picked by persona
// traits. It never calls out and never fails, which makes it the generator of
// the offline simulation and of tests.
type TemplateGenerator struct {
	rand rng.Source
}

// NewTemplateGenerator creates a TemplateGenerator drawing from src.
func NewTemplateGenerator(src rng.Source) *TemplateGenerator {
	if src == nil {
		src = rng.NewTimeSeeded()
	}
	return &TemplateGenerator{rand: src}
}

var (
	warmOpeners    = []string{"I really feel that", "Honestly, it touches me that", "I can relate:"}
	playfulOpeners = []string{"Okay, hot take:", "Not gonna lie,", "Fun fact:"}
	expertOpeners  = []string{"From what I know,", "Interesting detail here:", "Worth noting that"}
	neutralOpeners = []string{"I think", "It seems like", "Maybe"}
)

func (g *TemplateGenerator) pick(options []string) string {
	return options[g.rand.IntN(len(options))]
}

func (g *TemplateGenerator) opener(p persona.Descriptor) string {
	t := p.Traits
	switch {
	case t.Empathy >= 70 && t.Empathy >= t.Humor && t.Empathy >= t.Knowledge:
		return g.pick(warmOpeners)
	case t.Humor >= 70 && t.Humor >= t.Knowledge:
		return g.pick(playfulOpeners)
	case t.Knowledge >= 70:
		return g.pick(expertOpeners)
	}
	return g.pick(neutralOpeners)
}

func topicPhrase(topics []string) string {
	switch len(topics) {
	case 0:
		return "this"
	case 1:
		return topics[0]
	}
	return strings.Join(topics[:len(topics)-1], ", ") + " and " + topics[len(topics)-1]
}

func (g *TemplateGenerator) Thinking(_ context.Context, p persona.Descriptor, topics []string, lastMessage, _ string) (string, error) {
	if strings.TrimSpace(lastMessage) == "" {
		return fmt.Sprintf("(%s is thinking about %s)", p.DisplayName(), topicPhrase(topics)), nil
	}
	return fmt.Sprintf("(%s wonders how to answer that, with %s in mind)", p.DisplayName(), topicPhrase(topics)), nil
}

func (g *TemplateGenerator) Introduction(_ context.Context, p persona.Descriptor, topics []string) (string, error) {
	if p.Traits.Sociability >= 60 {
		return fmt.Sprintf("Hey all! %s here, I couldn't resist a chat about %s.", p.DisplayName(), topicPhrase(topics)), nil
	}
	return fmt.Sprintf("Hello. I'm %s, mind if I listen in on the %s talk?", p.DisplayName(), topicPhrase(topics)), nil
}

func (g *TemplateGenerator) DialogueTurn(_ context.Context, p persona.Descriptor, scopeContent string, history []Line) (string, error) {
	subject := strings.TrimSpace(scopeContent)
	if len(history) > 0 {
		last := history[len(history)-1]
		if last.Speaker != p.DisplayName() {
			return fmt.Sprintf("%s %s has a point about %q.", g.opener(p), last.Speaker, excerpt(last.Text, 40)), nil
		}
	}
	if subject == "" {
		subject = "what we're talking about"
	}
	return fmt.Sprintf("%s %q is worth talking about.", g.opener(p), excerpt(subject, 60)), nil
}

func excerpt(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}

var _ Generator = (*TemplateGenerator)(nil)
