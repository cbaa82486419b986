// Package server holds the HTTP plumbing shared by every handler package:
// request context values, URL parameter parsing and middleware.
package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fms/internal/apperr"
	"fms/internal/models"
	"fms/internal/response"
)

// ContextKey is the type used for request context keys.
type ContextKey string

const (
	CtxActor     ContextKey = "actor"
	CtxRequestID ContextKey = "requestID"
)

// WithActor returns ctx carrying the authenticated actor.
func WithActor(ctx context.Context, a models.Actor) context.Context {
	return context.WithValue(ctx, CtxActor, a)
}

// ActorFrom returns the authenticated actor of a request context.
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	a, ok := ctx.Value(CtxActor).(models.Actor)
	return a, ok
}

// Actor returns the request's actor, answering 401 when there is none.
func Actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	a, ok := ActorFrom(r.Context())
	if !ok {
		response.Err(w, "Unauthorized", http.StatusUnauthorized)
	}
	return a, ok
}

// RequestID returns the id assigned by the RequestID middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(CtxRequestID).(string)
	return id
}

// IDParam parses a positive integer URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &apperr.ValidationError{Field: name, Message: "must be a positive integer, got " + strconv.Quote(raw)}
	}
	return id, nil
}

// Page reads the page and limit query parameters. Limit defaults to 50 and
// is capped at 500.
func Page(r *http.Request) (page, limit, offset int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return page, limit, (page - 1) * limit
}

// Int64Query parses an optional integer query parameter; missing or
// malformed values read as zero.
func Int64Query(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CtxRequestID, id)
}
