// Package memory holds the per-session conversation log.
// Each session owns exactly one Conversation; it survives across requests
// within the session and is reset on demand.
package memory

import "sync"

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-tagged utterance in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is an append-only ordered log of turns. Insertion order is
// significant: the engine uses the tail of the log as LLM context.
type Conversation struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds a turn to the end of the log.
func (c *Conversation) Append(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, Turn{Role: role, Content: content})
}

// Turns returns a copy of the full log.
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// LastN returns a copy of the most recent n turns (all turns if n exceeds
// the log length).
func (c *Conversation) LastN(n int) []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n > len(c.turns) {
		n = len(c.turns)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Turn, n)
	copy(out, c.turns[len(c.turns)-n:])
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Reset clears the log.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}
