package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storewatch/storewatch/internal/app"
	"github.com/storewatch/storewatch/internal/audit"
	"github.com/storewatch/storewatch/internal/broadcast"
	"github.com/storewatch/storewatch/internal/gate"
	"github.com/storewatch/storewatch/internal/observability"
	"github.com/storewatch/storewatch/internal/permission"
	"github.com/storewatch/storewatch/internal/platform/cache"
	"github.com/storewatch/storewatch/internal/platform/db"
	"github.com/storewatch/storewatch/internal/roles"
	"github.com/storewatch/storewatch/internal/shared"
	"github.com/storewatch/storewatch/internal/tenant"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionTTL)

	contextCache := tenant.NewContextCache(cfg.ContextCacheTTL, cfg.ContextCacheSweep, logger)
	contextCache.Start(ctx)
	defer contextCache.Close()

	directory := tenant.NewRepository(pool)
	resolver := tenant.NewResolver(tenant.Mode(cfg.TenantMode), cfg.TenantBaseDomain, directory, contextCache, logger)
	tenantMiddleware := tenant.Middleware{Resolver: resolver}

	auditRepo := audit.NewRepository(pool)
	auditLogger := audit.NewLogger(auditRepo, logger, cfg.AuditQueueSize)
	auditLogger.Start()
	defer auditLogger.Close()

	roleRepo := permission.NewRepository(pool)
	engine := permission.NewEngine(roleRepo, auditLogger, logger)
	permissionMiddleware := permission.Middleware{Engine: engine}
	permissionHandler := permission.NewHandler(logger, engine)

	featureGate := gate.NewFeatureGate(logger)
	usageCounter := gate.NewRedisUsageCounter(redisClient)
	quotaEnforcer := gate.NewQuotaEnforcer(usageCounter, logger)
	gateMiddleware := gate.Middleware{Features: featureGate, Quotas: quotaEnforcer}

	broadcaster := broadcast.NewBroadcaster(logger)
	streamHandler := broadcast.NewHandler(logger, broadcaster)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo, broadcaster, logger)
	rolesHandler := roles.NewHandler(logger, rolesService)

	metrics := observability.NewMetrics()
	engine.Instrument(metrics.PermissionChecks, metrics.PermissionDuration)
	contextCache.Instrument(metrics.CacheLookups)
	auditLogger.Instrument(metrics.AuditDropped)
	broadcaster.Instrument(metrics.BroadcastDelivered, metrics.BroadcastPruned)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		SessionManager:       sessionManager,
		TenantMiddleware:     tenantMiddleware,
		GateMiddleware:       gateMiddleware,
		PermissionMiddleware: permissionMiddleware,
		PermissionHandler:    permissionHandler,
		RolesHandler:         rolesHandler,
		StreamHandler:        streamHandler,
		Metrics:              metrics,
	})

	// WriteTimeout stays unset: the permission event stream holds its
	// response open for the life of the session.
	server := &http.Server{
		Addr:        cfg.AppAddr,
		Handler:     router,
		ReadTimeout: cfg.AppReadTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
