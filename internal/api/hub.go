package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/supervisor/internal/domain"
	"github.com/ashureev/supervisor/internal/identity"
)

const (
	subscriberBuffer = 16
	writeTimeout     = 5 * time.Second
)

// Event is one message on the live feed.
type Event struct {
	Type       string                   `json:"type"`
	Transition *domain.HealthTransition `json:"transition,omitempty"`
	Turn       *domain.TurnRecord       `json:"turn,omitempty"`
}

// Hub fans watchdog transitions and completed turns out to websocket
// subscribers. A subscriber that cannot keep up loses events.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*websocket.Conn]chan Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[*websocket.Conn]chan Event)}
}

// Notify implements watchdog.Notifier.
func (h *Hub) Notify(_ context.Context, t domain.HealthTransition) {
	h.publish(Event{Type: "transition", Transition: &t})
}

// ObserveTurn implements bot.TurnObserver.
func (h *Hub) ObserveTurn(_ context.Context, turn domain.TurnRecord) {
	h.publish(Event{Type: "turn", Turn: &turn})
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			slog.Debug("Event feed subscriber lagging, dropping event", "type", ev.Type)
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.subscribers, conn)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events until either side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := identity.IPFromRequest(r)
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", ip)
		return
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "feed closed"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	events := h.register(conn)
	defer h.unregister(conn)
	slog.Info("Event feed subscriber connected", "ip", ip)

	// The feed is one-way; CloseRead handles control frames and cancels ctx
	// when the client disconnects.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case ev := <-events:
			if err := writeEvent(ctx, conn, ev); err != nil {
				slog.Debug("Event feed write failed", "error", err, "ip", ip)
				return
			}
		case <-ctx.Done():
			slog.Info("Event feed subscriber disconnected", "ip", ip)
			return
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
