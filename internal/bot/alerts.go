package bot

import (
	"context"
	"fmt"

	"github.com/ashureev/supervisor/internal/domain"
)

// AlertNotifier delivers watchdog transitions to the operator's chat.
type AlertNotifier struct {
	out    *Sender
	chatID domain.ConversationID
	label  string
}

// NewAlertNotifier creates a notifier. label names the supervised service.
func NewAlertNotifier(out *Sender, chatID domain.ConversationID, label string) *AlertNotifier {
	if label == "" {
		label = "Gateway"
	}
	return &AlertNotifier{out: out, chatID: chatID, label: label}
}

// Notify implements watchdog.Notifier.
func (a *AlertNotifier) Notify(ctx context.Context, t domain.HealthTransition) {
	switch t.Kind {
	case domain.TransitionDown:
		a.out.Send(ctx, a.chatID, fmt.Sprintf("%s is DOWN.\n\n%s", a.label, t.Summary), AlertKeyboard())
	case domain.TransitionRecovered:
		a.out.Send(ctx, a.chatID, fmt.Sprintf("%s is back up.", a.label), nil)
	}
}
