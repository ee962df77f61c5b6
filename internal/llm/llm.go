package llm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/lukasbauer/aria/internal/textutil"
)

// ErrNotConfigured is returned when a client has no credentials, so no call
// was attempted.
var ErrNotConfigured = errors.New("llm: not configured")

// DefaultMaxPromptChars caps the prompt sent to a provider.
const DefaultMaxPromptChars = 10000

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a conversation message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client defines the interface for LLM providers.
type Client interface {
	// Generate returns the model's reply to the conversation. The first
	// message is usually the system persona.
	Generate(ctx context.Context, messages []Message) (string, error)
}

// TruncateMessages drops the oldest non-system messages until the total
// content length fits in maxChars. The newest message is always kept, cut
// down with "..." if it alone is too long. maxChars <= 0 disables the cap.
func TruncateMessages(messages []Message, maxChars int) []Message {
	if maxChars <= 0 || len(messages) == 0 {
		return messages
	}

	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	if total <= maxChars {
		return messages
	}

	out := append([]Message(nil), messages...)
	for total > maxChars {
		idx := -1
		for i := 0; i < len(out)-1; i++ {
			if out[i].Role != RoleSystem {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		total -= len(out[idx].Content)
		out = append(out[:idx], out[idx+1:]...)
	}

	if total > maxChars {
		last := &out[len(out)-1]
		budget := maxChars - (total - len(last.Content))
		last.Content = textutil.Truncate(last.Content, budget)
	}
	return out
}
