// Command consumer drains the driver-location Kafka topic and applies
// each sample through the location service, so location ingestion can be
// scaled independently of the API server.
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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ridehail/internal/app"
	"ridehail/internal/config"
	"ridehail/internal/ingest"
	"ridehail/internal/logging"
	internalRedis "ridehail/internal/redis"
	"ridehail/internal/repository/postgres"
	"ridehail/internal/service"
)

func main() {
	cfg := config.Load()
	log := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := app.NewDatabase(ctx, cfg.Database, nil)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nil)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	locationStore := internalRedis.NewLocationStore(redisClient)
	locationRepo := postgres.NewLocationRepository(db)
	bus := internalRedis.NewFeedBus(redisClient, log)
	locationService := service.NewLocationService(locationStore, locationRepo, bus, log)

	consumer := ingest.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, locationService.Ingest, log)
	defer consumer.Close()

	// Metrics and health endpoint on a side port.
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(503, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})
	go func() {
		if err := http.ListenAndServe(":2112", router); err != nil {
			log.Warn("metrics server stopped", "error", err)
		}
	}()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("consumer starting", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers, "group", cfg.Kafka.GroupID)
	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
	log.Info("consumer exited")
}
