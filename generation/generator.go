package generation

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentroom/persona"
)

// Line is one history entry as the generator sees it.
type Line struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Generator produces the text of a conversation. Implementations may fail or
// return empty strings; wrap them in Resilient before handing them to the
// orchestrator.
type Generator interface {
	// Thinking returns a short inner monologue shown before the persona speaks.
	Thinking(ctx context.Context, p persona.Descriptor, topics []string, lastMessage, history string) (string, error)

	// Introduction returns the greeting a persona posts when it joins a room.
	Introduction(ctx context.Context, p persona.Descriptor, topics []string) (string, error)

	// DialogueTurn returns the persona's next message.
	DialogueTurn(ctx context.Context, p persona.Descriptor, scopeContent string, history []Line) (string, error)
}

// Kind names a generation call for logs and metrics.
type Kind string

const (
	KindThinking     Kind = "thinking"
	KindIntroduction Kind = "introduction"
	KindDialogue     Kind = "dialogue"
)

// FallbackThinking replaces a failed thinking call.
const FallbackThinking = "..."

// FallbackDialogue replaces a failed dialogue call.
const FallbackDialogue = "Hmm, that's an interesting point. I'd love to hear what everyone else thinks."

// FallbackIntroduction returns the generic greeting for p.
func FallbackIntroduction(p persona.Descriptor) string {
	return fmt.Sprintf("Hi everyone, I'm %s. Mind if I join the conversation?", p.DisplayName())
}
