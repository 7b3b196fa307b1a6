// Package identity decides who may operate the bot and carries the
// operator's identity through request contexts.
package identity

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
)

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
)

// Gate admits exactly one chat user.
type Gate struct {
	allowed int64

	mu       sync.Mutex
	rejected map[int64]int
}

// NewGate creates a gate for the allowed user ID. Zero admits nobody.
func NewGate(allowed int64) *Gate {
	return &Gate{allowed: allowed, rejected: make(map[int64]int)}
}

// Allows reports whether userID may use the bot. Rejections are counted per
// user so repeated attempts are visible in the logs without flooding them.
func (g *Gate) Allows(userID int64, username string) bool {
	if g.allowed != 0 && userID == g.allowed {
		return true
	}

	g.mu.Lock()
	g.rejected[userID]++
	count := g.rejected[userID]
	g.mu.Unlock()

	if count == 1 || count%10 == 0 {
		slog.Warn("Rejected message from unauthorized user", "user_id", userID, "username", username, "attempts", count)
	}
	return false
}

// Rejections returns how many times userID has been turned away.
func (g *Gate) Rejections(userID int64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rejected[userID]
}

// WithUser returns a context carrying the operator's identity.
func WithUser(ctx context.Context, userID int64, username string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, usernameKey, username)
}

// UserIDFromContext extracts the user ID from the context.
func UserIDFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(userIDKey).(int64); ok {
		return v
	}
	return 0
}

// UsernameFromContext extracts the username from the context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// IPFromRequest returns a normalized remote IP for request logging.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
