package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haruocode/otomohan-sub001/internal/accounts"
	"github.com/haruocode/otomohan-sub001/internal/audit"
	"github.com/haruocode/otomohan-sub001/internal/auth"
	"github.com/haruocode/otomohan-sub001/internal/billing"
	"github.com/haruocode/otomohan-sub001/internal/broadcast"
	"github.com/haruocode/otomohan-sub001/internal/call"
	"github.com/haruocode/otomohan-sub001/internal/config"
	"github.com/haruocode/otomohan-sub001/internal/gateway"
	"github.com/haruocode/otomohan-sub001/internal/httpapi"
	"github.com/haruocode/otomohan-sub001/internal/observability"
	"github.com/haruocode/otomohan-sub001/internal/pricing"
	"github.com/haruocode/otomohan-sub001/internal/reporting"
	"github.com/haruocode/otomohan-sub001/internal/wallet"
	"github.com/haruocode/otomohan-sub001/pkg/logger"
	"github.com/haruocode/otomohan-sub001/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	metrics := observability.NewMetrics("otomohan")

	// Persistence
	callStore := call.NewPostgresStore(db)
	unitStore := billing.NewPostgresUnitStore(db)
	directory := accounts.NewPostgresDirectory(db)
	presence := accounts.NewRedisPresence(rdb, cfg.Gateway.PresenceTTL)
	walletSvc := wallet.NewService(db)
	rates := pricing.NewService(pricing.NewPostgresRepo(db))
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	reports := reporting.NewService(reporting.NewPostgresRepo(db))

	// Lifecycle
	registry := broadcast.NewRegistry(log)
	finalizer := call.NewFinalizer(callStore, directory, registry, log)
	finalizer.SetMetrics(metrics)
	finalizer.SetAudit(auditSvc)

	engine := billing.NewEngine(billing.EngineConfig{
		TickInterval:     cfg.Billing.TickInterval,
		HeartbeatTimeout: cfg.Billing.HeartbeatTimeout,
	}, walletSvc, callStore, unitStore, finalizer, registry, log)
	engine.SetMetrics(metrics)

	coordinator := call.NewCoordinator(callStore, directory, presence, rates, engine, finalizer, registry, log)

	gw := gateway.New(coordinator, registry, presence, authManager, rdb, metrics, log, gateway.Config{
		MaxConnsPerAccount: cfg.Gateway.MaxConnsPerAccount,
	})

	handlers := httpapi.Handlers{
		Auth:      authManager,
		Wallet:    walletSvc,
		Calls:     coordinator,
		CallStore: callStore,
		Timers:    engine,
		Reports:   reports,
		Audit:     auditSvc,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, authManager, handlers, gw)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	engine.Shutdown()

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
