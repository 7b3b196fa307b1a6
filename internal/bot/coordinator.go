package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/ashureev/supervisor/internal/agent"
	"github.com/ashureev/supervisor/internal/domain"
	"github.com/ashureev/supervisor/internal/session"
	"github.com/ashureev/supervisor/internal/throttle"
)

// DefaultTypingInterval is how often the typing indicator is refreshed while
// the assistant works.
const DefaultTypingInterval = 5 * time.Second

// CoordinatorConfig tunes progressive delivery.
type CoordinatorConfig struct {
	Policy         throttle.Policy
	TypingInterval time.Duration
}

// Coordinator runs one user turn: placeholder, throttled progressive edits,
// presence signals, and final delivery.
type Coordinator struct {
	runner         agent.Invoker
	msg            Messenger
	out            *Sender
	replies        *session.Replies
	policy         throttle.Policy
	typingInterval time.Duration
	observers      []TurnObserver
	now            func() time.Time
}

// NewCoordinator creates a coordinator. msg is used for the placeholder and
// its edits; out delivers anything that has to be sent as new messages.
func NewCoordinator(runner agent.Invoker, msg Messenger, out *Sender, replies *session.Replies, cfg CoordinatorConfig, observers ...TurnObserver) *Coordinator {
	if cfg.Policy == (throttle.Policy{}) {
		cfg.Policy = throttle.DefaultPolicy()
	}
	if cfg.TypingInterval <= 0 {
		cfg.TypingInterval = DefaultTypingInterval
	}
	return &Coordinator{
		runner:         runner,
		msg:            msg,
		out:            out,
		replies:        replies,
		policy:         cfg.Policy,
		typingInterval: cfg.TypingInterval,
		observers:      observers,
		now:            time.Now,
	}
}

type turnResult struct {
	outcome agent.Outcome
	err     error
}

// HandleTurn sends text to the assistant for chatID and delivers the reply.
// It returns the text shown to the user and the runner's error, which has
// already been turned into a notice.
func (c *Coordinator) HandleTurn(ctx context.Context, chatID domain.ConversationID, text string) (string, error) {
	started := c.now()
	c.out.Typing(ctx, chatID)

	var placeholder int64
	if msg, err := c.msg.SendMessage(ctx, int64(chatID), placeholderText, nil); err != nil {
		slog.Warn("Failed to send placeholder", "chat_id", chatID.String(), "error", err)
	} else {
		placeholder = msg.MessageID
	}

	// Unbuffered: the runner drops snapshots while an edit is in flight.
	progress := make(chan string)
	done := make(chan turnResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Assistant runner panicked", "chat_id", chatID.String(), "panic", r)
				done <- turnResult{err: fmt.Errorf("%w: %v", errRunnerPanic, r)}
			}
		}()
		outcome, err := c.runner.Invoke(ctx, chatID, text, progress)
		done <- turnResult{outcome: outcome, err: err}
	}()

	tracker := throttle.NewTracker(c.policy)
	ticker := time.NewTicker(c.typingInterval)
	defer ticker.Stop()

	var result turnResult
wait:
	for {
		select {
		case snapshot := <-progress:
			if placeholder == 0 || !tracker.Offer(snapshot, c.now()) {
				continue
			}
			if err := c.msg.EditMessageText(ctx, int64(chatID), placeholder, snapshot); err != nil {
				slog.Debug("Progressive edit failed", "chat_id", chatID.String(), "error", err)
			}
			c.out.Typing(ctx, chatID)
		case <-ticker.C:
			c.out.Typing(ctx, chatID)
		case result = <-done:
			break wait
		}
	}

	reply := result.outcome.Text
	if result.err != nil {
		reply = notice(result.err)
		slog.Warn("Assistant turn failed", "chat_id", chatID.String(), "outcome", agent.Classify(result.err), "error", result.err)
	} else {
		c.replies.Remember(chatID, reply)
		slog.Info("Sending response", "chat_id", chatID.String(), "chars", utf8.RuneCountInString(reply))
	}
	c.deliver(ctx, chatID, placeholder, tracker.LastText(), reply)

	c.observe(ctx, domain.TurnRecord{
		ConversationID: chatID,
		PromptLength:   utf8.RuneCountInString(text),
		ReplyLength:    utf8.RuneCountInString(result.outcome.Text),
		Outcome:        agent.Classify(result.err),
		Resumed:        result.outcome.Resumed,
		Duration:       c.now().Sub(started),
		StartedAt:      started,
	})
	return reply, result.err
}

// deliver puts the final text in the placeholder when it fits, otherwise
// replaces the placeholder with chunked messages.
func (c *Coordinator) deliver(ctx context.Context, chatID domain.ConversationID, placeholder int64, shown, text string) {
	keyboard := ActionKeyboard()
	if placeholder != 0 && utf8.RuneCountInString(text) <= c.out.MaxLen() {
		edited := true
		if text != shown {
			if err := c.msg.EditMessageText(ctx, int64(chatID), placeholder, text); err != nil {
				slog.Warn("Final edit failed, sending new message", "chat_id", chatID.String(), "error", err)
				edited = false
			}
		}
		if edited {
			if err := c.msg.EditMessageReplyMarkup(ctx, int64(chatID), placeholder, keyboard); err != nil {
				slog.Debug("Failed to attach keyboard", "chat_id", chatID.String(), "error", err)
			}
			return
		}
	}
	if placeholder != 0 {
		if err := c.msg.DeleteMessage(ctx, int64(chatID), placeholder); err != nil {
			slog.Debug("Failed to delete placeholder", "chat_id", chatID.String(), "error", err)
		}
	}
	c.out.Send(ctx, chatID, text, keyboard)
}

func (c *Coordinator) observe(ctx context.Context, turn domain.TurnRecord) {
	for _, o := range c.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Turn observer panicked", "panic", r)
				}
			}()
			o.ObserveTurn(ctx, turn)
		}()
	}
}
