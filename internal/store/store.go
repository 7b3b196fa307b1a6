// Package store persists the supervisor's history: completed turns and
// watchdog transitions. Session tokens are never written here.
package store

import (
	"context"
	"time"

	"github.com/ashureev/supervisor/internal/domain"
)

// Journal defines the interface for recording and reading history.
type Journal interface {
	// RecordTurn appends a completed turn and sets its ID.
	RecordTurn(ctx context.Context, turn *domain.TurnRecord) error

	// RecordTransition appends a watchdog transition and sets its ID.
	RecordTransition(ctx context.Context, transition *domain.HealthTransition) error

	// RecentTurns returns up to limit turns, newest first.
	RecentTurns(ctx context.Context, limit int) ([]domain.TurnRecord, error)

	// RecentTransitions returns up to limit transitions, newest first.
	RecentTransitions(ctx context.Context, limit int) ([]domain.HealthTransition, error)

	// Prune deletes entries older than before and returns how many went.
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
