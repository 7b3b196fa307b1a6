// Package api serves the supervisor's read-only status surface: health,
// watchdog state, journal history and a live event feed.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/supervisor/internal/domain"
	"github.com/ashureev/supervisor/internal/watchdog"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// History is the part of the journal the status surface reads.
type History interface {
	RecentTurns(ctx context.Context, limit int) ([]domain.TurnRecord, error)
	RecentTransitions(ctx context.Context, limit int) ([]domain.HealthTransition, error)
}

// SnapshotFunc returns the current watchdog view.
type SnapshotFunc func() watchdog.Snapshot

// Handler serves the status endpoints.
type Handler struct {
	snapshot SnapshotFunc
	history  History
	service  string
}

// NewHandler creates a handler. history may be nil when the journal is
// disabled.
func NewHandler(snapshot SnapshotFunc, history History, service string) *Handler {
	return &Handler{snapshot: snapshot, history: history, service: service}
}

type statusResponse struct {
	Service  string            `json:"service"`
	Watchdog watchdog.Snapshot `json:"watchdog"`
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, statusResponse{Service: h.service, Watchdog: h.snapshot()})
}

// Turns handles GET /api/turns?limit=N.
func (h *Handler) Turns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		Error(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	turns, err := h.history.RecentTurns(r.Context(), historyLimit(r))
	if err != nil {
		slog.Error("Failed to read turns", "error", err)
		Error(w, http.StatusInternalServerError, "failed to read turns")
		return
	}
	if turns == nil {
		turns = []domain.TurnRecord{}
	}
	JSON(w, http.StatusOK, map[string]any{"turns": turns})
}

// Transitions handles GET /api/transitions?limit=N.
func (h *Handler) Transitions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		Error(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	transitions, err := h.history.RecentTransitions(r.Context(), historyLimit(r))
	if err != nil {
		slog.Error("Failed to read transitions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to read transitions")
		return
	}
	if transitions == nil {
		transitions = []domain.HealthTransition{}
	}
	JSON(w, http.StatusOK, map[string]any{"transitions": transitions})
}

func historyLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultHistoryLimit
	}
	return min(n, maxHistoryLimit)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
