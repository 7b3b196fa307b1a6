// Package bot connects the chat transport to the assistant runner and the
// health watchdog.
package bot

import (
	"context"
	"time"

	"github.com/ashureev/supervisor/internal/domain"
	"github.com/ashureev/supervisor/internal/health"
	"github.com/ashureev/supervisor/internal/telegram"
	"github.com/ashureev/supervisor/internal/tts"
)

// Messenger is the outbound half of the chat transport.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *telegram.InlineKeyboardMarkup) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
	SendVoice(ctx context.Context, chatID int64, audio []byte, filename, caption string) (telegram.Message, error)
}

// UpdateSource is the inbound half of the chat transport.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// HealthService is what the command surface needs from the health package.
type HealthService interface {
	Probe(ctx context.Context) (domain.HealthVerdict, error)
	Restart(ctx context.Context, settle time.Duration) (domain.HealthVerdict, error)
	Logs() health.LogReader
}

// Synthesizer turns text into a voice clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (tts.Audio, error)
}

// TurnObserver is told about every completed turn.
type TurnObserver interface {
	ObserveTurn(ctx context.Context, turn domain.TurnRecord)
}

// TurnObserverFunc adapts a function to TurnObserver.
type TurnObserverFunc func(ctx context.Context, turn domain.TurnRecord)

// ObserveTurn calls f.
func (f TurnObserverFunc) ObserveTurn(ctx context.Context, turn domain.TurnRecord) {
	f(ctx, turn)
}

var (
	_ Messenger     = (*telegram.Client)(nil)
	_ UpdateSource  = (*telegram.Client)(nil)
	_ HealthService = (*health.Probe)(nil)
	_ Synthesizer   = (*tts.Synthesizer)(nil)
)
