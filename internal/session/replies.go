package session

import (
	"sync"

	"github.com/ashureev/supervisor/internal/domain"
)

// Replies remembers the last assistant reply per conversation so it can be
// read aloud on request.
type Replies struct {
	mu   sync.RWMutex
	last map[domain.ConversationID]string
}

// NewReplies creates an empty reply memory.
func NewReplies() *Replies {
	return &Replies{last: make(map[domain.ConversationID]string)}
}

// Remember stores text as the latest reply for a conversation.
func (r *Replies) Remember(conversationID domain.ConversationID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[conversationID] = text
}

// Last returns the latest reply, or false if there is none.
func (r *Replies) Last(conversationID domain.ConversationID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	text, ok := r.last[conversationID]
	return text, ok && text != ""
}
