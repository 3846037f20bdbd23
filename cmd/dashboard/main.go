package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/taxi-ops/internal/alerts"
	"github.com/example/taxi-ops/internal/config"
	"github.com/example/taxi-ops/internal/docstore"
	httpapi "github.com/example/taxi-ops/internal/http"
	"github.com/example/taxi-ops/internal/hub"
	"github.com/example/taxi-ops/internal/identity"
	"github.com/example/taxi-ops/internal/logging"
	"github.com/example/taxi-ops/internal/payments"
	"github.com/example/taxi-ops/internal/state"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// optional migration: documents table + notify trigger for local runs
	if cfg.PGDSN != "" && cfg.RunMigrations {
		if db, err := sql.Open("postgres", cfg.PGDSN); err == nil {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_create_documents.sql")); err == nil {
				if _, err := db.Exec(string(b)); err != nil {
					logger.Error("migration exec error", "error", err)
				} else {
					logger.Info("migration applied", "file", "001_create_documents.sql")
				}
			}
			_ = db.Close()
		} else {
			logger.Error("migration db open error", "error", err)
		}
	}

	var src docstore.Source
	switch {
	case cfg.RedisAddr != "":
		src = docstore.NewRedisSource(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix)
		logger.Info("document source", "backend", "redis", "addr", cfg.RedisAddr)
	case cfg.PGDSN != "":
		ps, err := docstore.NewPostgresSource(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres source init failed", "error", err)
			os.Exit(1)
		}
		src = ps
		logger.Info("document source", "backend", "postgres")
	default:
		src = docstore.NewMemorySource()
		logger.Warn("no document store configured, serving empty in-memory collections")
	}

	idc := identity.NewHTTPClient(cfg.IdentityEndpoint, cfg.IdentityAPIKey)

	var stripeClient *payments.StripeClient
	if cfg.StripeAPIKey != "" {
		stripeClient = payments.NewStripeClient(cfg.StripeAPIKey)
	}

	deriver := alerts.NewDeriver(cfg.AlertStuckAfter)
	mgr := state.NewManager(logging.ForComponent(logger, "state"), deriver)
	h := hub.NewHub(logging.ForComponent(logger, "hub"))
	cancelListen := mgr.Listen(h.Broadcast)
	defer cancelListen()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr.Start(ctx, src)
	defer mgr.Stop()

	api := httpapi.NewServer(logging.ForComponent(logger, "http"), mgr, idc, stripeClient, h)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("taxi-ops dashboard listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
