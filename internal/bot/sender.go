package bot

import (
	"context"
	"log/slog"

	"github.com/ashureev/supervisor/internal/chunker"
	"github.com/ashureev/supervisor/internal/domain"
	"github.com/ashureev/supervisor/internal/telegram"
	"github.com/ashureev/supervisor/internal/throttle"
)

// Sender delivers text to a chat, splitting it to fit the message limit.
// Transport failures are logged and swallowed.
type Sender struct {
	msg    Messenger
	maxLen int
}

// NewSender creates a sender. maxLen defaults to the chat message limit.
func NewSender(msg Messenger, maxLen int) *Sender {
	if maxLen <= 0 {
		maxLen = throttle.DefaultMaxLen
	}
	return &Sender{msg: msg, maxLen: maxLen}
}

// Send sends text in as many messages as needed. The keyboard goes on the
// last chunk only. It returns the last message ID, or 0 if nothing was sent.
func (s *Sender) Send(ctx context.Context, chatID domain.ConversationID, text string, markup *telegram.InlineKeyboardMarkup) int64 {
	if text == "" {
		return 0
	}
	chunks := chunker.Split(text, s.maxLen)
	var lastID int64
	for i, chunk := range chunks {
		if chunk == "" {
			continue
		}
		var m *telegram.InlineKeyboardMarkup
		if i == len(chunks)-1 {
			m = markup
		}
		msg, err := s.msg.SendMessage(ctx, int64(chatID), chunk, m)
		if err != nil {
			slog.Error("Failed to send message", "chat_id", chatID.String(), "chunk", i+1, "chunks", len(chunks), "error", err)
			continue
		}
		lastID = msg.MessageID
	}
	return lastID
}

// MaxLen is the longest text that fits in one message.
func (s *Sender) MaxLen() int {
	return s.maxLen
}

// Typing shows the typing indicator.
func (s *Sender) Typing(ctx context.Context, chatID domain.ConversationID) {
	s.action(ctx, chatID, telegram.ActionTyping)
}

func (s *Sender) action(ctx context.Context, chatID domain.ConversationID, action string) {
	if err := s.msg.SendChatAction(ctx, int64(chatID), action); err != nil {
		slog.Debug("Failed to send chat action", "chat_id", chatID.String(), "action", action, "error", err)
	}
}
