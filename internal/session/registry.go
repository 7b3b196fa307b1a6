// Package session keeps per-conversation assistant state in memory.
package session

import (
	"log/slog"
	"sync"

	"github.com/ashureev/supervisor/internal/domain"
)

// Registry maps a conversation to the assistant's continuation token.
// Entries live for the lifetime of the process; nothing is persisted.
type Registry struct {
	mu     sync.RWMutex
	tokens map[domain.ConversationID]domain.SessionToken
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tokens: make(map[domain.ConversationID]domain.SessionToken),
	}
}

// Get returns the token for a conversation, if one has been observed.
func (r *Registry) Get(conversationID domain.ConversationID) (domain.SessionToken, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.tokens[conversationID]
	return token, ok
}

// Set records the latest token for a conversation, replacing any previous one.
func (r *Registry) Set(conversationID domain.ConversationID, token domain.SessionToken) {
	if token == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if previous, ok := r.tokens[conversationID]; !ok || previous != token {
		slog.Debug("Session token updated", "chat_id", conversationID.String(), "session_id", string(token))
	}
	r.tokens[conversationID] = token
}

// Clear forgets the token so the next turn starts a fresh session.
func (r *Registry) Clear(conversationID domain.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, conversationID)
}

// Len returns the number of conversations with a live token.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
