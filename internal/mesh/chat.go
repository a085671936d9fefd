package mesh

import (
	"sync"

	"github.com/lingomeet/mesh/internal/domain"
)

// ChatLog stores messages in arrival order and drops duplicates by id.
// The sender appends its own message optimistically; the broadcast echo (or
// an at-least-once redelivery) is then discarded here. Retained design
// choice, not a bug.
type ChatLog struct {
	mu   sync.Mutex
	seen map[string]struct{}
	msgs []domain.ChatMessage
}

func NewChatLog() *ChatLog {
	return &ChatLog{seen: make(map[string]struct{})}
}

// Append records msg unconditionally as seen and stored.
func (c *ChatLog) Append(msg domain.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[msg.ID] = struct{}{}
	c.msgs = append(c.msgs, msg)
}

// Receive stores msg unless its id was already seen. Reports whether it was
// stored.
func (c *ChatLog) Receive(msg domain.ChatMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[msg.ID]; ok {
		return false
	}
	c.seen[msg.ID] = struct{}{}
	c.msgs = append(c.msgs, msg)
	return true
}

// Snapshot returns the stored messages in arrival order.
func (c *ChatLog) Snapshot() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChatMessage, len(c.msgs))
	copy(out, c.msgs)
	return out
}
