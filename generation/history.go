package generation

import (
	"strings"

	"github.com/BaSui01/agentroom/internal/tokenizer"
)

func (l Line) String() string {
	return l.Speaker + ": " + l.Text
}

// Trim keeps the most recent history lines whose combined token count fits
// budget. The newest line is always kept; a non-positive budget keeps
// everything.
func Trim(history []Line, tok tokenizer.Tokenizer, budget int) []Line {
	if budget <= 0 || len(history) == 0 {
		return history
	}
	if tok == nil {
		tok = tokenizer.NewEstimatorTokenizer()
	}
	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		n, err := tok.CountTokens(history[i].String())
		if err != nil {
			n = len(history[i].String()) / 4
		}
		if used+n > budget && start < len(history) {
			break
		}
		used += n
		start = i
	}
	return history[start:]
}

// FormatHistory renders the trimmed history as "Speaker: text" lines.
func FormatHistory(history []Line, tok tokenizer.Tokenizer, budget int) string {
	kept := Trim(history, tok, budget)
	lines := make([]string, len(kept))
	for i, l := range kept {
		lines[i] = l.String()
	}
	return strings.Join(lines, "\n")
}
