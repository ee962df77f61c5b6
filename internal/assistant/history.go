package assistant

import (
	"sync"

	"github.com/lukasbauer/aria/internal/llm"
)

// DefaultHistoryMax is the default number of non-system messages kept.
const DefaultHistoryMax = 10

// History is a session's chat log, seeded with the persona system message.
// Only the session goroutine appends; Snapshot may be called from anywhere.
type History struct {
	mu   sync.RWMutex
	msgs []llm.Message
	max  int
}

// NewHistory creates a history whose first entry is the system prompt. max
// caps the number of non-system messages; 0 keeps everything.
func NewHistory(systemPrompt string, max int) *History {
	return &History{
		msgs: []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}},
		max:  max,
	}
}

// Append adds a message, dropping the oldest non-system messages past the cap.
func (h *History) Append(role llm.Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.msgs = append(h.msgs, llm.Message{Role: role, Content: content})
	if h.max <= 0 {
		return
	}
	for h.nonSystem() > h.max {
		for i, m := range h.msgs {
			if m.Role != llm.RoleSystem {
				h.msgs = append(h.msgs[:i], h.msgs[i+1:]...)
				break
			}
		}
	}
}

// Snapshot returns a copy of the messages.
func (h *History) Snapshot() []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]llm.Message(nil), h.msgs...)
}

// System returns the persona system message.
func (h *History) System() llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.msgs[0]
}

// Reset drops every message except the system prompt.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = h.msgs[:1:1]
}

// Len returns the number of messages, system included.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.msgs)
}

func (h *History) nonSystem() int {
	n := 0
	for _, m := range h.msgs {
		if m.Role != llm.RoleSystem {
			n++
		}
	}
	return n
}
