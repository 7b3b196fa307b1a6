package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/supervisor/internal/domain"
	"github.com/ashureev/supervisor/internal/health"
	"github.com/ashureev/supervisor/internal/identity"
	"github.com/ashureev/supervisor/internal/session"
	"github.com/ashureev/supervisor/internal/telegram"
)

const (
	DefaultPollTimeout   = 30 * time.Second
	DefaultRetryDelay    = 5 * time.Second
	DefaultRestartSettle = 3 * time.Second

	// DefaultDiagnosePrompt is sent to the assistant by the Diagnose button.
	DefaultDiagnosePrompt = "The gateway appears to be down. Check launchctl status, read recent error logs, check if port 18789 is in use, and tell me what's wrong and how to fix it."

	helpText = "/status - quick gateway health check\n" +
		"/logs [N] - tail N lines of gateway logs\n" +
		"/new - clear Claude session\n" +
		"/voice - voice-read last response\n" +
		"Anything else goes to Claude."

	logPreviewLen = 80
)

// DispatcherConfig tunes the update loop and the command surface.
type DispatcherConfig struct {
	PollTimeout    time.Duration
	RetryDelay     time.Duration
	RestartSettle  time.Duration
	DiagnosePrompt string
}

// Dispatcher reads updates and routes them, one at a time, to commands or
// the coordinator.
type Dispatcher struct {
	updates  UpdateSource
	msg      Messenger
	out      *Sender
	gate     *identity.Gate
	coord    *Coordinator
	sessions *session.Registry
	replies  *session.Replies
	health   HealthService
	voice    Synthesizer
	cfg      DispatcherConfig

	offset int64
}

// Deps groups the dispatcher's collaborators.
type Deps struct {
	Updates  UpdateSource
	Messages Messenger
	Sender   *Sender
	Gate     *identity.Gate
	Coord    *Coordinator
	Sessions *session.Registry
	Replies  *session.Replies
	Health   HealthService
	Voice    Synthesizer
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(deps Deps, cfg DispatcherConfig) *Dispatcher {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.RestartSettle <= 0 {
		cfg.RestartSettle = DefaultRestartSettle
	}
	if cfg.DiagnosePrompt == "" {
		cfg.DiagnosePrompt = DefaultDiagnosePrompt
	}
	return &Dispatcher{
		updates:  deps.Updates,
		msg:      deps.Messages,
		out:      deps.Sender,
		gate:     deps.Gate,
		coord:    deps.Coord,
		sessions: deps.Sessions,
		replies:  deps.Replies,
		health:   deps.Health,
		voice:    deps.Voice,
		cfg:      cfg,
	}
}

// Run long-polls for updates until ctx is cancelled. Each update is
// acknowledged before it is handled, so a crashing update is not redelivered.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("Dispatcher started", "poll_timeout", d.cfg.PollTimeout)
	for {
		if ctx.Err() != nil {
			slog.Info("Dispatcher shutting down", "reason", ctx.Err())
			return nil
		}

		updates, err := d.updates.GetUpdates(ctx, d.offset, d.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			slog.Warn("getUpdates failed, retrying", "delay", d.cfg.RetryDelay, "error", err)
			select {
			case <-time.After(d.cfg.RetryDelay):
			case <-ctx.Done():
			}
			continue
		}

		for _, update := range updates {
			d.offset = update.UpdateID + 1
			d.HandleUpdate(ctx, update)
		}
	}
}

// Offset is the next update ID the dispatcher will ask for.
func (d *Dispatcher) Offset() int64 {
	return d.offset
}

// HandleUpdate routes one update. A panic is logged and contained.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Error handling update", "update_id", update.UpdateID, "panic", r)
		}
	}()

	switch {
	case update.Message != nil:
		d.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		d.handleCallback(ctx, update.CallbackQuery)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *telegram.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chatID := domain.ConversationID(msg.Chat.ID)

	var from telegram.User
	if msg.From != nil {
		from = *msg.From
	}
	if !d.gate.Allows(from.ID, from.Username) {
		d.out.Send(ctx, chatID, notAuthorizedText, nil)
		return
	}
	ctx = identity.WithUser(ctx, from.ID, from.Username)
	slog.Info("Message received", "user_id", from.ID, "chat_id", chatID.String(), "text", preview(text))

	command, arg := parseCommand(text)
	switch command {
	case "/new", "/start":
		d.sessions.Clear(chatID)
		d.out.Send(ctx, chatID, "Session cleared. Fresh start.", ActionKeyboard())
	case "/status":
		d.sendStatus(ctx, chatID)
	case "/logs":
		n := health.DefaultLogLines
		if v, err := strconv.Atoi(arg); err == nil && v > 0 {
			n = v
		}
		d.out.Send(ctx, chatID, d.health.Logs().Tail(n), nil)
	case "/help":
		d.out.Send(ctx, chatID, helpText, ActionKeyboard())
	case "/voice":
		d.replayVoice(ctx, chatID)
	default:
		if _, err := d.coord.HandleTurn(ctx, chatID, text); err != nil {
			slog.Debug("Turn ended with error", "chat_id", chatID.String(), "error", err)
		}
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if err := d.msg.AnswerCallbackQuery(ctx, cb.ID); err != nil {
		slog.Debug("Failed to answer callback", "callback_id", cb.ID, "error", err)
	}
	if !d.gate.Allows(cb.From.ID, cb.From.Username) {
		return
	}
	ctx = identity.WithUser(ctx, cb.From.ID, cb.From.Username)

	chatID := domain.ConversationID(cb.From.ID)
	if cb.Message != nil {
		chatID = domain.ConversationID(cb.Message.Chat.ID)
	}
	slog.Info("Callback received", "user_id", cb.From.ID, "data", cb.Data)

	switch cb.Data {
	case ActionStatus:
		d.sendStatus(ctx, chatID)
	case ActionLogs:
		d.out.Send(ctx, chatID, d.health.Logs().Tail(health.DefaultLogLines), nil)
	case ActionRestart:
		d.restart(ctx, chatID)
	case ActionNew:
		d.sessions.Clear(chatID)
		d.out.Send(ctx, chatID, "Session cleared.", ActionKeyboard())
	case ActionVoice:
		d.replayVoice(ctx, chatID)
	case ActionDiagnose:
		d.out.Typing(ctx, chatID)
		if _, err := d.coord.HandleTurn(ctx, chatID, d.cfg.DiagnosePrompt); err != nil {
			slog.Debug("Diagnose turn ended with error", "chat_id", chatID.String(), "error", err)
		}
	default:
		slog.Debug("Unknown callback data", "data", cb.Data)
	}
}

func (d *Dispatcher) sendStatus(ctx context.Context, chatID domain.ConversationID) {
	verdict, err := d.health.Probe(ctx)
	if err != nil {
		d.out.Send(ctx, chatID, fmt.Sprintf("[error] Health check failed: %v", err), ActionKeyboard())
		return
	}
	d.out.Send(ctx, chatID, verdict.Summary, ActionKeyboard())
}

func (d *Dispatcher) restart(ctx context.Context, chatID domain.ConversationID) {
	d.out.Typing(ctx, chatID)
	verdict, err := d.health.Restart(ctx, d.cfg.RestartSettle)
	if err != nil {
		slog.Error("Restart failed", "error", err)
		d.out.Send(ctx, chatID, fmt.Sprintf("[error] Restart failed: %v", err), nil)
		return
	}
	tag := "OK"
	if !verdict.Healthy {
		tag = "WARN"
	}
	d.out.Send(ctx, chatID, fmt.Sprintf("[%s] Restart issued.\n\n%s", tag, verdict.Summary), ActionKeyboard())
}

func (d *Dispatcher) replayVoice(ctx context.Context, chatID domain.ConversationID) {
	last, ok := d.replies.Last(chatID)
	if !ok {
		d.out.Send(ctx, chatID, noReplyToReadText, nil)
		return
	}
	if d.voice == nil {
		d.out.Send(ctx, chatID, ttsUnavailableMsg, nil)
		return
	}

	d.out.action(ctx, chatID, telegram.ActionRecordVoice)
	audio, err := d.voice.Synthesize(ctx, last)
	if err != nil {
		slog.Error("Voice synthesis failed", "chat_id", chatID.String(), "error", err)
		d.out.Send(ctx, chatID, ttsUnavailableMsg, nil)
		return
	}
	if _, err := d.msg.SendVoice(ctx, int64(chatID), audio.Data, audio.Filename, ""); err != nil {
		slog.Error("Failed to send voice", "chat_id", chatID.String(), "error", err)
	}
}

// parseCommand splits "/cmd@bot arg" into a lower-cased command and the rest.
// Text that is not a command yields an empty command.
func parseCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(text, " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > logPreviewLen {
		return string(runes[:logPreviewLen])
	}
	return text
}
