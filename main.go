package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fms/internal/audit"
	"fms/internal/auth"
	"fms/internal/bom"
	"fms/internal/cabinet"
	"fms/internal/cache"
	"fms/internal/config"
	"fms/internal/database"
	"fms/internal/inventory"
	"fms/internal/ledger"
	"fms/internal/logger"
	"fms/internal/metrics"
	"fms/internal/production"
	"fms/internal/purchasing"
	"fms/internal/requisition"
	"fms/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.Database.Path, log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	if err := bootstrapAdmin(ctx, store, log); err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	hub := websocket.NewHub(log)
	sink := audit.NewDBSink(store.DB, hub, log)

	var c cache.Cache = cache.NewMemory()
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.CacheTTL,
		})
		if err != nil {
			return err
		}
		defer rc.Close()
		c = rc
		log.Info("cabinet cache on redis", zap.String("addr", cfg.Redis.Addr))
	}

	l := ledger.New(m)
	cabinets := cabinet.New(store, cabinet.Options{
		Cache:            c,
		Audit:            sink,
		Metrics:          m,
		Logger:           log,
		DefaultLaborRate: decimal.NewFromFloat(cfg.Manufacturing.DefaultLaborRate),
	})
	if cfg.Catalog.SeedFile != "" {
		res, err := cabinets.SeedFile(ctx, cfg.Catalog.SeedFile)
		if err != nil {
			return fmt.Errorf("seed cabinet catalog: %w", err)
		}
		log.Info("cabinet catalog seeded", zap.Int("created", len(res.Created)), zap.Int("skipped", len(res.Skipped)))
	}

	deps := routerDeps{
		DB:           store.DB,
		Tokens:       auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.ApproverRoles),
		Audit:        sink,
		Metrics:      m,
		Hub:          hub,
		Log:          log,
		Inventory:    inventory.New(store, l, sink, log),
		Requisitions: requisition.New(store, l, sink, m, log),
		Purchasing:   purchasing.New(store, l, sink, m, log),
		BOMs:         bom.New(store, sink, log),
		Production:   production.New(store, l, sink, m, hub, log),
		Cabinets:     cabinets,
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: newRouter(deps),
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.Int("port", cfg.HTTP.Port), zap.String("env", cfg.App.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", zap.Duration("timeout", cfg.HTTP.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// bootstrapAdmin creates admin/changeme on an empty user table.
func bootstrapAdmin(ctx context.Context, store *database.Store, log *zap.Logger) error {
	var n int
	if err := store.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := auth.CreateUser(ctx, store.DB, "admin", "changeme", "Administrator", "admin"); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Warn("created default admin user; change its password")
	return nil
}
