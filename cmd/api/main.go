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

	"dialer-engine/internal/agents"
	"dialer-engine/internal/attempts"
	"dialer-engine/internal/audit"
	"dialer-engine/internal/auth"
	"dialer-engine/internal/campaigns"
	"dialer-engine/internal/compliance"
	"dialer-engine/internal/config"
	"dialer-engine/internal/contacts"
	"dialer-engine/internal/dialer"
	"dialer-engine/internal/httpapi"
	"dialer-engine/internal/metrics"
	"dialer-engine/internal/pacer"
	"dialer-engine/internal/telephony"
	"dialer-engine/pkg/logger"
	"dialer-engine/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	users, err := auth.ParseUsers(cfg.Auth.Users)
	if err != nil {
		log.Error("user table init failed", "err", err)
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

	// Persistence
	campaignRepo := campaigns.NewPostgresRepo(db)
	attemptStore := attempts.NewPostgresStore(db)
	violationRepo := compliance.NewPostgresViolations(db)
	settingsStore := compliance.NewCachedSettings(compliance.NewPostgresSettings(db), cfg.Dialer.SettingsTTL)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	campaignSvc := campaigns.NewService(campaignRepo, auditSvc)

	// Contact storage and the agent roster are owned by the surrounding
	// platform; until its read APIs land the engine runs on the
	// in-memory implementations seeded by the operator tooling.
	contactStore := contacts.NewMemoryStore()
	registry := agents.NewMemoryRegistry()

	dnc := contacts.NewRedisDNC(rdb, "")
	gate := compliance.NewGate(dnc, attemptStore, violationRepo)

	ceiling, err := buildCeiling(cfg, rdb)
	if err != nil {
		log.Error("ceiling init failed", "err", err)
		os.Exit(1)
	}

	provider, statusHandler := buildProvider(cfg)
	log.Info("telephony provider ready", "provider", provider.Name())

	worker := dialer.NewWorker(attemptStore, provider, registry, agents.NewLeastRecentlyAssigned(), ceiling, logger.Component(log, "dialer"))
	orch := dialer.NewOrchestrator(campaignSvc, contactStore, attemptStore, settingsStore, gate, worker, ceiling, logger.Component(log, "orchestrator"))

	metricsSvc := metrics.NewService(attemptStore, violationRepo, worker)
	collector := metrics.NewCollector(metricsSvc, cfg.Dialer.MetricsInterval, logger.Component(log, "metrics"))
	go collector.Run(rootCtx)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	handlers := httpapi.Handlers{
		Auth:         authManager,
		Users:        users,
		Campaigns:    campaignSvc,
		Orchestrator: orch,
		Attempts:     attemptStore,
		Settings:     settingsStore,
		Violations:   violationRepo,
		Metrics:      metricsSvc,
		Collector:    collector,
		Audit:        auditSvc,
	}
	registerRoutes(r, handlers, auth.RequireAccessToken(authManager), statusHandler, db)

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
	if err := orch.Shutdown(shutdownCtx); err != nil {
		log.Error("orchestrator shutdown failed", "err", err)
	}
}

func buildCeiling(cfg config.Config, rdb *redis.Client) (pacer.Ceiling, error) {
	switch cfg.Dialer.CeilingMode {
	case "redis":
		return pacer.NewRedisCeiling(rdb, pacer.RedisCeilingConfig{Limit: cfg.Dialer.MaxConcurrentCalls})
	default:
		return pacer.NewLocalCeiling(cfg.Dialer.MaxConcurrentCalls)
	}
}

// buildProvider returns the configured telephony adapter and, for the
// webhook provider, the status-callback handler to expose.
func buildProvider(cfg config.Config) (telephony.Provider, *telephony.StatusCallbackHandler) {
	if cfg.Dialer.Provider == "webhook" {
		p := telephony.NewWebhookProvider(cfg.Dialer.ProviderDialURL)
		return p, &telephony.StatusCallbackHandler{Provider: p}
	}
	return telephony.NewSimProvider(3 * time.Second), nil
}
