package admin

import (
	"database/sql"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fms/internal/audit"
	"fms/internal/auth"
	"fms/internal/server"
	"fms/internal/websocket"
)

// Handler holds dependencies for login, user and audit handlers.
type Handler struct {
	DB     *sql.DB
	Tokens *auth.Tokens
	Audit  audit.Sink
	Hub    *websocket.Hub
	// LoginLimiter throttles login attempts per client IP. Nil disables it.
	LoginLimiter *server.RateLimiter
	Log          *zap.Logger
}

func (h *Handler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h *Handler) audit() audit.Sink {
	if h.Audit == nil {
		return audit.Nop{}
	}
	return h.Audit
}

// PublicRoutes mounts the endpoints reachable without a token.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Group(func(r chi.Router) {
		if h.LoginLimiter != nil {
			r.Use(server.RateLimitMiddleware(h.LoginLimiter))
		}
		r.Post("/api/v1/login", h.Login)
	})
}

// Routes mounts the authenticated admin endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/me", h.Me)
	r.Get("/users", h.ListUsers)
	r.Post("/users", h.CreateUser)
	r.Put("/users/{id}/active", h.SetUserActive)
	r.Get("/audit", h.ListAudit)
}
