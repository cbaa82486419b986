package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fms/internal/audit"
	"fms/internal/auth"
	"fms/internal/models"
	"fms/internal/response"
	"fms/internal/server"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// Login handles POST /api/v1/login and returns a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := response.DecodeBody(w, r, &req); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	u, err := auth.Authenticate(r.Context(), h.DB, req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.log().Warn("login failed", zap.String("username", req.Username), zap.String("ip", server.ClientIP(r)))
		response.Err(w, "Invalid username or password", http.StatusUnauthorized)
		return
	case errors.Is(err, auth.ErrInactiveUser):
		response.Err(w, "Account deactivated", http.StatusForbidden)
		return
	case err != nil:
		response.Error(w, h.Log, err)
		return
	}

	token, expires, err := h.Tokens.Issue(u)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	h.audit().LogAuditTrail(r.Context(), audit.Entry{Table: "users", RecordID: u.ID, Action: audit.ActionLogin,
		NewValues: map[string]string{"ip": server.ClientIP(r)}, UserID: u.ID})
	response.JSON(w, LoginResponse{Token: token, ExpiresAt: expires, User: u})
}

// Me handles GET /api/v1/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	response.JSON(w, actor)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.Hub != nil {
		clients = h.Hub.Clients()
	}
	if err := h.DB.PingContext(r.Context()); err != nil {
		h.log().Error("health: database ping", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"status": "degraded", "ws_clients": clients})
		return
	}
	response.JSON(w, map[string]any{"status": "ok", "ws_clients": clients})
}
