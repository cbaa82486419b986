package admin_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"fms/internal/audit"
	"fms/internal/auth"
	"fms/internal/database"
	handlers "fms/internal/handlers/admin"
	"fms/internal/models"
	"fms/internal/server"
	"fms/internal/testutil"
)

type env struct {
	store  *database.Store
	tokens *auth.Tokens
	public http.Handler
	boss   http.Handler
	clerk  http.Handler
}

func setup(t *testing.T) *env {
	t.Helper()
	store := testutil.SetupTestDB(t)
	tokens := auth.NewTokens("test-secret", time.Hour, []string{"admin", "manager"})
	h := &handlers.Handler{
		DB:           store.DB,
		Tokens:       tokens,
		Audit:        audit.NewDBSink(store.DB, nil, nil),
		LoginLimiter: server.NewRateLimiter(3, time.Minute),
	}
	public := chi.NewRouter()
	h.PublicRoutes(public)
	authed := chi.NewRouter()
	h.Routes(authed)
	clerkID := testutil.CreateTestUser(t, store, "clerk", "user")
	return &env{
		store:  store,
		tokens: tokens,
		public: public,
		boss:   testutil.AsActor(authed, testutil.Approver(1)),
		clerk:  testutil.AsActor(authed, testutil.Clerk(clerkID)),
	}
}

func TestLogin(t *testing.T) {
	e := setup(t)

	w := testutil.Do(e.public, "POST", "/api/v1/login", map[string]string{"username": "admin", "password": "changeme"})
	testutil.AssertStatus(t, w, http.StatusOK)
	var resp handlers.LoginResponse
	testutil.DecodeEnvelope(t, w, &resp)
	actor, err := e.tokens.Parse(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if actor.Username != "admin" || !actor.CanApprove {
		t.Errorf("unexpected actor %+v", actor)
	}
	if n := testutil.CountRows(t, e.store, "audit_log", "action = 'LOGIN'"); n != 1 {
		t.Errorf("expected one LOGIN audit entry, got %d", n)
	}

	w = testutil.Do(e.public, "POST", "/api/v1/login", map[string]string{"username": "admin", "password": "wrong"})
	testutil.AssertStatus(t, w, http.StatusUnauthorized)

	w = testutil.Do(e.public, "POST", "/api/v1/login", map[string]string{"username": "nobody", "password": "x"})
	testutil.AssertStatus(t, w, http.StatusUnauthorized)

	w = testutil.Do(e.public, "POST", "/api/v1/login", map[string]string{"username": "admin", "password": "changeme"})
	testutil.AssertStatus(t, w, http.StatusTooManyRequests)
}

func TestLoginInactiveUser(t *testing.T) {
	e := setup(t)
	if _, err := e.store.DB.ExecContext(context.Background(), "UPDATE users SET active = 0 WHERE username = 'clerk'"); err != nil {
		t.Fatal(err)
	}
	w := testutil.Do(e.public, "POST", "/api/v1/login", map[string]string{"username": "clerk", "password": "password"})
	testutil.AssertStatus(t, w, http.StatusForbidden)
}

func TestHealth(t *testing.T) {
	e := setup(t)
	w := testutil.Do(e.public, "GET", "/health", nil)
	testutil.AssertStatus(t, w, http.StatusOK)
}

func TestUsersAndAudit(t *testing.T) {
	e := setup(t)

	w := testutil.Do(e.clerk, "GET", "/me", nil)
	testutil.AssertStatus(t, w, http.StatusOK)
	var me models.Actor
	testutil.DecodeEnvelope(t, w, &me)
	if me.Username != "clerk" || me.CanApprove {
		t.Errorf("unexpected actor %+v", me)
	}

	testutil.AssertStatus(t, testutil.Do(e.clerk, "GET", "/users", nil), http.StatusForbidden)
	testutil.AssertStatus(t, testutil.Do(e.clerk, "GET", "/audit", nil), http.StatusForbidden)

	w = testutil.Do(e.boss, "POST", "/users", map[string]string{"username": "keeper", "password": "storeroom1", "role": "storekeeper"})
	testutil.AssertStatus(t, w, http.StatusCreated)
	var u models.User
	testutil.DecodeEnvelope(t, w, &u)
	if u.Role != "storekeeper" || !u.Active {
		t.Errorf("unexpected user %+v", u)
	}

	testutil.AssertStatus(t, testutil.Do(e.boss, "POST", "/users", map[string]string{"username": "keeper", "password": "storeroom1"}), http.StatusConflict)
	testutil.AssertStatus(t, testutil.Do(e.boss, "POST", "/users", map[string]string{"username": "short", "password": "x"}), http.StatusBadRequest)
	testutil.AssertStatus(t, testutil.Do(e.boss, "POST", "/users", map[string]string{"username": "odd", "password": "longenough", "role": "wizard"}), http.StatusBadRequest)
	testutil.AssertStatus(t, testutil.Do(e.boss, "PUT", "/users/1/active", map[string]bool{"active": false}), http.StatusConflict)
	testutil.AssertStatus(t, testutil.Do(e.boss, "PUT", "/users/99/active", map[string]bool{"active": false}), http.StatusNotFound)

	w = testutil.Do(e.boss, "GET", "/users", nil)
	var users []models.User
	testutil.DecodeEnvelope(t, w, &users)
	if len(users) != 3 {
		t.Errorf("expected 3 users, got %d", len(users))
	}

	w = testutil.Do(e.boss, "GET", "/audit?table=users", nil)
	testutil.AssertStatus(t, w, http.StatusOK)
	var entries []models.AuditEntry
	testutil.DecodeEnvelope(t, w, &entries)
	if len(entries) != 1 || entries[0].Action != audit.ActionCreate {
		t.Errorf("unexpected audit entries %+v", entries)
	}
}
