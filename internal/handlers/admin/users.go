package admin

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"fms/internal/apperr"
	"fms/internal/audit"
	"fms/internal/auth"
	"fms/internal/database"
	"fms/internal/models"
	"fms/internal/response"
	"fms/internal/server"
	"fms/internal/validation"
)

type CreateUserRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

const minPasswordLength = 8

func (req CreateUserRequest) validate() error {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "username", req.Username)
	validation.ValidateMaxLength(ve, "username", req.Username, 64)
	if len(req.Password) < minPasswordLength {
		ve.Add("password", "must be at least 8 characters")
	}
	validation.ValidateEnum(ve, "role", req.Role, validation.ValidRoles)
	return ve.Err()
}

// requireAdmin resolves the actor and checks it may perform action.
func requireAdmin(w http.ResponseWriter, r *http.Request, action string) (models.Actor, bool) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return actor, false
	}
	if err := auth.RequireApproval(actor, action); err != nil {
		response.Err(w, err.Error(), http.StatusForbidden)
		return actor, false
	}
	return actor, true
}

func getUser(r *http.Request, q database.Querier, id int64) (models.User, error) {
	var u models.User
	var lastLogin *string
	err := q.QueryRowContext(r.Context(),
		"SELECT id, username, COALESCE(display_name,''), role, active, last_login, created_at FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &u.Active, &lastLogin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, apperr.NotFound("user", id)
		}
		return u, err
	}
	u.LastLogin = lastLogin
	return u, nil
}

// ListUsers handles GET /api/v1/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r, auth.ActionManageUsers); !ok {
		return
	}
	rows, err := h.DB.QueryContext(r.Context(),
		"SELECT id, username, COALESCE(display_name,''), role, active, last_login, created_at FROM users ORDER BY username")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	defer rows.Close()
	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &u.Active, &u.LastLogin, &u.CreatedAt); err != nil {
			response.Error(w, h.Log, err)
			return
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, users)
}

// CreateUser handles POST /api/v1/users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAdmin(w, r, auth.ActionManageUsers)
	if !ok {
		return
	}
	var req CreateUserRequest
	if err := response.DecodeBody(w, r, &req); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Role == "" {
		req.Role = "user"
	}
	if err := req.validate(); err != nil {
		response.Error(w, h.Log, err)
		return
	}

	var taken int
	if err := h.DB.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM users WHERE username = ?", req.Username).Scan(&taken); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	if taken > 0 {
		response.Error(w, h.Log, apperr.Conflict("user", req.Username, "username already exists"))
		return
	}
	id, err := auth.CreateUser(r.Context(), h.DB, req.Username, req.Password, req.DisplayName, req.Role)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	u, err := getUser(r, h.DB, id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	h.audit().LogAuditTrail(r.Context(), audit.Entry{Table: "users", RecordID: id, Action: audit.ActionCreate, NewValues: u, UserID: actor.UserID})
	response.Created(w, u)
}

// SetUserActive handles PUT /api/v1/users/{id}/active. Users cannot
// deactivate themselves.
func (h *Handler) SetUserActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAdmin(w, r, auth.ActionManageUsers)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var body struct {
		Active bool `json:"active"`
	}
	if err := response.DecodeBody(w, r, &body); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	if id == actor.UserID && !body.Active {
		response.Error(w, h.Log, apperr.Conflict("user", id, "cannot deactivate your own account"))
		return
	}
	before, err := getUser(r, h.DB, id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	if _, err := h.DB.ExecContext(r.Context(), "UPDATE users SET active = ? WHERE id = ?", body.Active, id); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	before.Active = body.Active
	h.audit().LogAuditTrail(r.Context(), audit.Entry{Table: "users", RecordID: id, Action: audit.ActionUpdate,
		NewValues: map[string]bool{"active": body.Active}, UserID: actor.UserID})
	response.JSON(w, before)
}

// ListAudit handles GET /api/v1/audit?table=&record_id=&user_id=&limit=.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r, auth.ActionViewAudit); !ok {
		return
	}
	entries, err := audit.List(r.Context(), h.DB, audit.Filter{
		Table:    r.URL.Query().Get("table"),
		RecordID: server.Int64Query(r, "record_id"),
		UserID:   server.Int64Query(r, "user_id"),
		Limit:    int(server.Int64Query(r, "limit")),
	})
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, entries)
}
