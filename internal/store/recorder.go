package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/supervisor/internal/domain"
)

const recordTimeout = 5 * time.Second

// Recorder writes turns and watchdog transitions to a journal as they happen.
// Write failures are logged; history is never allowed to block the bot.
type Recorder struct {
	journal Journal
}

// NewRecorder creates a recorder over journal.
func NewRecorder(journal Journal) *Recorder {
	return &Recorder{journal: journal}
}

// ObserveTurn implements bot.TurnObserver.
func (r *Recorder) ObserveTurn(ctx context.Context, turn domain.TurnRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := r.journal.RecordTurn(ctx, &turn); err != nil {
		slog.Error("Failed to record turn", "chat_id", turn.ConversationID.String(), "error", err)
	}
}

// Notify implements watchdog.Notifier.
func (r *Recorder) Notify(ctx context.Context, t domain.HealthTransition) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := r.journal.RecordTransition(ctx, &t); err != nil {
		slog.Error("Failed to record health transition", "kind", string(t.Kind), "error", err)
	}
}
