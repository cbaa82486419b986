package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"fms/internal/audit"
	"fms/internal/auth"
	"fms/internal/bom"
	"fms/internal/cabinet"
	"fms/internal/handlers/admin"
	"fms/internal/handlers/configurator"
	invhandlers "fms/internal/handlers/inventory"
	"fms/internal/handlers/manufacturing"
	"fms/internal/handlers/procurement"
	"fms/internal/inventory"
	"fms/internal/metrics"
	"fms/internal/production"
	"fms/internal/purchasing"
	"fms/internal/requisition"
	"fms/internal/server"
	"fms/internal/websocket"
)

type routerDeps struct {
	DB      *sql.DB
	Tokens  *auth.Tokens
	Audit   audit.Sink
	Metrics *metrics.Metrics
	Hub     *websocket.Hub
	Log     *zap.Logger

	Inventory    *inventory.Service
	Requisitions *requisition.Service
	Purchasing   *purchasing.Service
	BOMs         *bom.Service
	Production   *production.Service
	Cabinets     *cabinet.Service
}

// Login attempts allowed per client IP per minute.
const loginAttemptsPerMinute = 10

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(server.RequestIDMiddleware)
	r.Use(server.LoggingMiddleware(d.Log))
	r.Use(server.MetricsMiddleware(d.Metrics))
	r.Use(server.SecurityHeaders)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json"))

	adminH := &admin.Handler{
		DB:           d.DB,
		Tokens:       d.Tokens,
		Audit:        d.Audit,
		Hub:          d.Hub,
		LoginLimiter: server.NewRateLimiter(loginAttemptsPerMinute, time.Minute),
		Log:          d.Log,
	}
	adminH.PublicRoutes(r)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(server.RequireAuth(d.Tokens))
		r.Handle("/ws", d.Hub)
		r.Route("/api/v1", func(r chi.Router) {
			adminH.Routes(r)
			(&invhandlers.Handler{Items: d.Inventory, Log: d.Log}).Routes(r)
			(&procurement.Handler{Requisitions: d.Requisitions, Purchasing: d.Purchasing, Log: d.Log}).Routes(r)
			(&manufacturing.Handler{BOMs: d.BOMs, Production: d.Production, Log: d.Log}).Routes(r)
			(&configurator.Handler{Cabinets: d.Cabinets, Log: d.Log}).Routes(r)
		})
	})
	return r
}
