package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ashureev/supervisor/internal/agent"
	"github.com/ashureev/supervisor/internal/domain"
	"github.com/ashureev/supervisor/internal/health"
	"github.com/ashureev/supervisor/internal/telegram"
	"github.com/ashureev/supervisor/internal/tts"
)

type sentMessage struct {
	chatID int64
	id     int64
	text   string
	markup *telegram.InlineKeyboardMarkup
}

type edit struct {
	messageID int64
	text      string
}

type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int64
	sent      []sentMessage
	edits     []edit
	markups   []int64
	deleted   []int64
	actions   []string
	answered  []string
	voices    []tts.Audio
	failSends bool
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSends {
		return telegram.Message{}, errors.New("network down")
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{chatID: chatID, id: f.nextID, text: text, markup: markup})
	return telegram.Message{MessageID: f.nextID, Chat: telegram.Chat{ID: chatID}, Text: text}, nil
}

func (f *fakeMessenger) EditMessageText(_ context.Context, _ int64, messageID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, edit{messageID: messageID, text: text})
	return nil
}

func (f *fakeMessenger) EditMessageReplyMarkup(_ context.Context, _ int64, messageID int64, _ *telegram.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markups = append(f.markups, messageID)
	return nil
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, _ int64, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessenger) SendChatAction(_ context.Context, _ int64, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeMessenger) AnswerCallbackQuery(_ context.Context, callbackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, callbackID)
	return nil
}

func (f *fakeMessenger) SendVoice(_ context.Context, chatID int64, audio []byte, filename, _ string) (telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voices = append(f.voices, tts.Audio{Data: audio, Filename: filename})
	return telegram.Message{Chat: telegram.Chat{ID: chatID}}, nil
}

func (f *fakeMessenger) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		out = append(out, m.text)
	}
	return out
}

func (f *fakeMessenger) lastSent() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeMessenger) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.actions {
		if a == action {
			n++
		}
	}
	return n
}

// fakeRunner plays a script of snapshots and then returns a fixed result.
type fakeRunner struct {
	mu        sync.Mutex
	calls     []string
	snapshots []string
	delay     time.Duration
	outcome   agent.Outcome
	err       error
	panicWith any
}

func (r *fakeRunner) Invoke(_ context.Context, _ domain.ConversationID, text string, progress chan<- string) (agent.Outcome, error) {
	r.mu.Lock()
	r.calls = append(r.calls, text)
	r.mu.Unlock()
	for _, s := range r.snapshots {
		progress <- s
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.panicWith != nil {
		panic(r.panicWith)
	}
	return r.outcome, r.err
}

func (r *fakeRunner) invocations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeHealth struct {
	mu       sync.Mutex
	verdict  domain.HealthVerdict
	probeErr error
	probes   int
	restarts int
	settle   time.Duration
	logs     health.LogReader
}

func (h *fakeHealth) Probe(context.Context) (domain.HealthVerdict, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes++
	return h.verdict, h.probeErr
}

func (h *fakeHealth) Restart(_ context.Context, settle time.Duration) (domain.HealthVerdict, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restarts++
	h.settle = settle
	return h.verdict, nil
}

func (h *fakeHealth) Logs() health.LogReader { return h.logs }

type fakeVoice struct {
	text string
	err  error
}

func (v *fakeVoice) Synthesize(_ context.Context, text string) (tts.Audio, error) {
	v.text = text
	if v.err != nil {
		return tts.Audio{}, v.err
	}
	return tts.Audio{Data: []byte("OggS"), Filename: "response.ogg"}, nil
}
