// Package main is the standalone recurrence worker. It consumes
// task.completed events from NATS and creates the next occurrence of
// recurring tasks through the task API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/auth"
	"github.com/taskloop/taskloop/internal/common/config"
	"github.com/taskloop/taskloop/internal/common/httpmw"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/db"
	"github.com/taskloop/taskloop/internal/events"
	"github.com/taskloop/taskloop/internal/events/processed"
	"github.com/taskloop/taskloop/internal/recurrence"
	"github.com/taskloop/taskloop/internal/taskclient"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	log.Info("starting recurrence worker")

	provided, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer func() { _ = busCleanup() }()
	if provided.InProcess() {
		// Without NATS the API process hosts the worker itself and this
		// binary would never see an event.
		log.Warn("no NATS URL configured; the in-memory bus carries no events across processes")
	}

	pool, err := db.Open(cfg.Recurrence.Database)
	if err != nil {
		log.Fatal("failed to open worker database", zap.Error(err))
	}
	defer func() { _ = pool.Close() }()

	store, err := processed.NewStore(pool, "recurrence-worker")
	if err != nil {
		log.Fatal("failed to initialize dedup store", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDurationTime())
	client := taskclient.NewClient(cfg.Recurrence.TaskAPIURL, "recurrence-worker", tokens)

	worker := recurrence.NewService(provided.Bus, store, client, cfg.Recurrence.QueueGroup, log)
	sub, err := worker.Start()
	if err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	server := serveHealth(cfg, log, "taskloop-recurrence")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down recurrence worker")
	_ = sub.Unsubscribe()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("health server shutdown error", zap.Error(err))
	}
	log.Info("recurrence worker stopped")
}

// serveHealth exposes the probe endpoint for orchestration.
func serveHealth(cfg *config.Config, log *logger.Logger, service string) *http.Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.Correlation())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": service,
			"version": "1.0.0",
		})
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}
	go func() {
		log.Info("health endpoint listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health server error", zap.Error(err))
		}
	}()
	return server
}
