package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pewpew-tabletop/range-backend/internal/config"
	"github.com/pewpew-tabletop/range-backend/internal/engine"
	"github.com/pewpew-tabletop/range-backend/internal/httpapi"
	"github.com/pewpew-tabletop/range-backend/internal/hub"
	"github.com/pewpew-tabletop/range-backend/internal/persist"
	"github.com/pewpew-tabletop/range-backend/internal/scenario"
	"github.com/pewpew-tabletop/range-backend/internal/session"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.Debug)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store persist.Store = persist.NopStore{}
	if cfg.DatabaseDSN != "" {
		gs, err := persist.Open(cfg.DatabaseDSN, logger)
		if err != nil {
			logger.Fatal("database connect failed", zap.Error(err))
		}
		store = gs
		defer func() { _ = store.Close() }()
		logger.Info("snapshot store online")
	} else {
		logger.Info("no database configured, snapshots disabled")
	}

	catalog := scenario.Default()

	rules := engine.DefaultRules()
	rules.TurnLimit = cfg.TurnLimit
	rules.RoundLimit = cfg.RoundLimit
	rules.VoteQuorum = cfg.VoteQuorum
	rules.AlertNoise = cfg.AlertNoise
	rules.TimelineSLA = cfg.TimelineSLA

	h := hub.New(ctx, hub.Config{
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
		SessionConfig: session.Config{
			Rules:         rules,
			LogCap:        cfg.EventLogCap,
			TimeDilation:  cfg.TimeDilation,
			DisableResync: !cfg.WSResync,
			Catalog:       catalog,
			Store:         store,
			Logger:        logger,
		},
	})

	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:           h,
		Store:         store,
		Catalog:       catalog,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return l
	}
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}
