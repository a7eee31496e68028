package completion

import (
	"strings"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

// historyWindow caps how many prior turns the prompt carries.
const historyWindow = 10

// BuildPrompt flattens a completion request into a single prompt string:
// optional system prompt, the last historyWindow turns as "role: content"
// lines, then the new user message with an assistant cue.
func BuildPrompt(req domain.CompletionRequest) string {
	var b strings.Builder

	if req.SystemPrompt != "" {
		b.WriteString(req.SystemPrompt)
		b.WriteString("\n\n")
	}

	history := req.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, turn := range history {
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}

	b.WriteString("User: ")
	b.WriteString(req.Message)
	b.WriteString("\nAssistant:")
	return b.String()
}
