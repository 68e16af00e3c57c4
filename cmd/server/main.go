package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	goredis "github.com/redis/go-redis/v9"

	"ridehail/internal/app"
	"ridehail/internal/config"
	"ridehail/internal/dispatch"
	"ridehail/internal/handler"
	internalRedis "ridehail/internal/redis"
	"ridehail/internal/repository/postgres"
	"ridehail/internal/route"
	"ridehail/internal/service"
	"ridehail/internal/session"

	"ridehail/internal/logging"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	log := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic first so the database driver can be instrumented.
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Warn("failed to initialize New Relic", "error", err)
		} else {
			log.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	log.Info("connected to Redis")

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := wireServer(runCtx, db, redisClient, nrApp, cfg, log)

	go func() {
		log.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-runCtx.Done()
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server. Feed
// consumers run until ctx is cancelled.
func wireServer(ctx context.Context, db *sql.DB, redisClient *goredis.Client, nrApp *newrelic.Application, cfg *config.Config, log *slog.Logger) *http.Server {
	// Redis stores and the cross-instance change-feed.
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	bus := internalRedis.NewFeedBus(redisClient, log)

	// Repositories.
	sessionRepo := postgres.NewSessionRepository(db)
	locationRepo := postgres.NewLocationRepository(db)

	// Route planning. Each session gets its own planner so re-fetch
	// origins stay scoped to that session.
	provider := newRouteProvider(cfg.Routing, log)
	newPlanner := func() *route.Planner {
		return route.NewPlanner(provider, cfg.Tracking.RefetchThresholdM, log)
	}

	// Services.
	wsHub := handler.NewWSHub(log)
	notifier := service.NewNotificationService(wsHub, log)
	dispatcher := dispatch.NewDispatcher(locationStore, bus, dispatch.Config{
		RadiusKm:        cfg.Matching.SearchRadiusKm,
		CandidateWait:   cfg.Matching.CandidateWait,
		DefaultSpeedMps: cfg.Matching.DefaultSpeedMps,
	}, log)
	sessionService := service.NewSessionService(sessionRepo, lockStore, dispatcher, bus, notifier, log)
	registry := session.NewRegistry(newPlanner, sessionService, session.Config{
		ArrivalRadiusM:   cfg.Tracking.ArrivalRadiusM,
		MoveThresholdM:   cfg.Tracking.MoveThresholdM,
		TruncationWindow: cfg.Tracking.TruncationWindow,
	}, log)
	sessionService.BindRegistry(registry)
	locationService := service.NewLocationService(locationStore, locationRepo, bus, log)

	// Feed fan-out: live machines and websocket clients.
	go registry.Consume(ctx, bus)
	go wsHub.Consume(ctx, bus)

	// Handlers.
	sessionHandler := handler.NewSessionHandler(sessionService)
	driverHandler := handler.NewDriverHandler(locationService)

	router := app.NewRouter(app.RouterDeps{
		SessionHandler: sessionHandler,
		DriverHandler:  driverHandler,
		WSHub:          wsHub,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// newRouteProvider selects the configured route provider. An unknown
// provider (or a Google client that fails to build) returns nil; the
// planner then serves straight-line fallbacks.
func newRouteProvider(cfg config.RoutingConfig, log *slog.Logger) route.Provider {
	switch cfg.Provider {
	case "osrm":
		return route.NewOSRMProvider(cfg.OSRMEndpoint, cfg.RequestTimeout)
	case "google":
		p, err := route.NewGoogleProvider(cfg.GoogleAPIKey)
		if err != nil {
			log.Warn("google route provider unavailable", "error", err)
			return nil
		}
		return p
	default:
		log.Warn("unknown route provider, using straight-line fallback", "provider", cfg.Provider)
		return nil
	}
}
