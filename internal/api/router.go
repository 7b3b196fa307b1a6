package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/supervisor/internal/middleware"
)

// RouterConfig controls access to the status surface.
type RouterConfig struct {
	// Token, when set, is required as a bearer token on /api and /ws routes.
	Token          string
	AllowedOrigins []string
}

// NewRouter wires the status endpoints. /health stays public.
func NewRouter(h *Handler, hub *Hub, cfg RouterConfig) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerToken(cfg.Token))
		r.Get("/api/status", h.Status)
		r.Get("/api/turns", h.Turns)
		r.Get("/api/transitions", h.Transitions)
		r.Get("/ws/events", hub.ServeHTTP)
	})
	return r
}
