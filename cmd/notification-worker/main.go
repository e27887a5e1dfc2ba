// Package main is the standalone notification worker. It consumes
// reminder.due events from NATS and delivers one notification per event
// over SMTP, or to the structured log when no SMTP host is configured.
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

	"github.com/taskloop/taskloop/internal/common/config"
	"github.com/taskloop/taskloop/internal/common/httpmw"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/db"
	"github.com/taskloop/taskloop/internal/events"
	"github.com/taskloop/taskloop/internal/events/processed"
	"github.com/taskloop/taskloop/internal/notifications"
	"github.com/taskloop/taskloop/internal/notifications/providers"
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

	log.Info("starting notification worker")

	provided, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer func() { _ = busCleanup() }()
	if provided.InProcess() {
		log.Warn("no NATS URL configured; the in-memory bus carries no events across processes")
	}

	pool, err := db.Open(cfg.Notifier.Database)
	if err != nil {
		log.Fatal("failed to open worker database", zap.Error(err))
	}
	defer func() { _ = pool.Close() }()

	store, err := processed.NewStore(pool, "notification-worker")
	if err != nil {
		log.Fatal("failed to initialize dedup store", zap.Error(err))
	}

	templates, err := notifications.LoadTemplates(cfg.Notifier.TemplatesPath)
	if err != nil {
		log.Warn("failed to load notification templates, using defaults", zap.Error(err))
	}

	var sender providers.Sender
	if cfg.Notifier.SMTP.Host != "" {
		sender = providers.NewSMTPSender(cfg.Notifier.SMTP)
		log.Info("using SMTP sender", zap.String("host", cfg.Notifier.SMTP.Host))
	} else {
		sender = providers.NewLogSender(log)
		log.Info("no SMTP host configured, using log sender")
	}

	worker := notifications.NewService(provided.Bus, store, sender, templates, cfg.Notifier.QueueGroup, log)
	sub, err := worker.Start()
	if err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.Correlation())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "taskloop-notifier",
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down notification worker")
	_ = sub.Unsubscribe()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("health server shutdown error", zap.Error(err))
	}
	log.Info("notification worker stopped")
}
