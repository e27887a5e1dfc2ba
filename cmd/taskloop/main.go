// Package main is the unified entry point for Taskloop. One binary hosts
// the task API, the reminder scheduler, and, when the in-memory bus is
// active, the recurrence and notification workers.
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

	agenthandlers "github.com/taskloop/taskloop/internal/agent"
	"github.com/taskloop/taskloop/internal/auth"
	chathandlers "github.com/taskloop/taskloop/internal/chat/handlers"
	chatservice "github.com/taskloop/taskloop/internal/chat/service"
	chatstore "github.com/taskloop/taskloop/internal/chat/store"
	"github.com/taskloop/taskloop/internal/common/config"
	"github.com/taskloop/taskloop/internal/common/httpmw"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/db"
	"github.com/taskloop/taskloop/internal/events"
	"github.com/taskloop/taskloop/internal/events/processed"
	gatewayws "github.com/taskloop/taskloop/internal/gateway/websocket"
	"github.com/taskloop/taskloop/internal/llm"
	"github.com/taskloop/taskloop/internal/notifications"
	"github.com/taskloop/taskloop/internal/notifications/providers"
	"github.com/taskloop/taskloop/internal/recurrence"
	taskhandlers "github.com/taskloop/taskloop/internal/task/handlers"
	"github.com/taskloop/taskloop/internal/task/repository"
	taskservice "github.com/taskloop/taskloop/internal/task/service"
	"github.com/taskloop/taskloop/internal/tracing"
	userhandlers "github.com/taskloop/taskloop/internal/user/handlers"
	userservice "github.com/taskloop/taskloop/internal/user/service"
	userstore "github.com/taskloop/taskloop/internal/user/store"
	v1 "github.com/taskloop/taskloop/pkg/api/v1"
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

	log.Info("starting taskloop")
	if cfg.Auth.IsDevSecret() {
		log.Warn("auth.jwtSecret not configured, using a generated development secret")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event bus: NATS when configured, in-memory otherwise.
	provided, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer func() { _ = busCleanup() }()

	pool, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer func() { _ = pool.Close() }()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDurationTime())

	userRepo, err := userstore.NewSQLRepository(pool)
	if err != nil {
		log.Fatal("failed to initialize user store", zap.Error(err))
	}
	userSvc := userservice.NewService(userRepo, tokens, cfg.Auth.BcryptCost, log)

	taskRepo, err := repository.NewSQLRepository(pool)
	if err != nil {
		log.Fatal("failed to initialize task repository", zap.Error(err))
	}
	taskSvc := taskservice.NewService(taskRepo, provided.Bus, cfg.Events.Enabled, log)

	chatRepo, err := chatstore.NewSQLRepository(pool)
	if err != nil {
		log.Fatal("failed to initialize chat store", zap.Error(err))
	}
	registry := agenthandlers.NewRegistry(taskSvc, log)
	llmClient := llm.NewOpenAIClient(cfg.Agent)
	chatSvc := chatservice.NewService(chatRepo, llmClient, registry,
		cfg.Agent.MaxToolIterations, cfg.Agent.TurnTimeoutDuration(), log)

	// Realtime push.
	hub := gatewayws.NewHub(log)
	defer hub.Close()
	forwarder := gatewayws.NewForwarder(provided.Bus, hub, log)
	if _, err := forwarder.Start(); err != nil {
		log.Fatal("failed to start websocket forwarder", zap.Error(err))
	}

	// Outbox drain: task.completed rows reach the bus within one interval.
	if cfg.Events.Enabled {
		publisher := events.NewOutboxPublisher(taskRepo, provided.Bus, events.SourceAPI,
			cfg.Events.OutboxIntervalDuration(), cfg.Events.OutboxBatch, log)
		go publisher.Start(ctx)
	}

	// Reminder sweep.
	if cfg.Scheduler.Enabled {
		go taskSvc.StartReminderLoop(ctx, cfg.Scheduler.TickDuration(), cfg.Scheduler.BatchSize)
	}

	// With the in-memory bus there is no other process to consume events,
	// so the unified binary hosts the workers itself.
	if provided.InProcess() {
		startInProcessWorkers(cfg, provided, pool, taskSvc, log)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.Correlation())
	router.Use(httpmw.CORS(cfg.Server.CORSOrigins))
	router.Use(httpmw.RequestLogger(log, "taskloop-api"))
	router.Use(httpmw.OtelTracing("taskloop-api"))

	userhandlers.RegisterRoutes(router, userSvc, tokens, log)
	taskhandlers.RegisterRoutes(router, taskSvc, tokens, log)
	agenthandlers.RegisterRoutes(router, registry, tokens, log)
	chathandlers.RegisterRoutes(router, chatSvc, userSvc, tokens, log)
	gatewayws.RegisterRoutes(router, hub, tokens, log)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "taskloop",
			"version": "1.0.0",
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("taskloop API listening",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down taskloop")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", zap.Error(err))
	}

	log.Info("taskloop stopped")
}

// startInProcessWorkers hosts the recurrence and notification workers on
// the in-memory bus. They share the API database; their dedup stores use
// distinct consumer names.
func startInProcessWorkers(cfg *config.Config, provided *events.ProvidedBus, pool *db.Pool, taskSvc *taskservice.Service, log *logger.Logger) {
	if cfg.Recurrence.Enabled {
		store, err := processed.NewStore(pool, "recurrence-worker")
		if err != nil {
			log.Fatal("failed to initialize recurrence dedup store", zap.Error(err))
		}
		worker := recurrence.NewService(provided.Bus, store, &localTaskAPI{svc: taskSvc},
			cfg.Recurrence.QueueGroup, log)
		if _, err := worker.Start(); err != nil {
			log.Fatal("failed to start recurrence worker", zap.Error(err))
		}
		log.Info("recurrence worker running in-process")
	}

	if cfg.Notifier.Enabled {
		store, err := processed.NewStore(pool, "notification-worker")
		if err != nil {
			log.Fatal("failed to initialize notifier dedup store", zap.Error(err))
		}
		templates, err := notifications.LoadTemplates(cfg.Notifier.TemplatesPath)
		if err != nil {
			log.Warn("failed to load notification templates, using defaults", zap.Error(err))
		}
		worker := notifications.NewService(provided.Bus, store, newSender(cfg, log), templates,
			cfg.Notifier.QueueGroup, log)
		if _, err := worker.Start(); err != nil {
			log.Fatal("failed to start notification worker", zap.Error(err))
		}
		log.Info("notification worker running in-process")
	}
}

// newSender selects the notification transport: SMTP when a host is
// configured, the structured log otherwise.
func newSender(cfg *config.Config, log *logger.Logger) providers.Sender {
	if cfg.Notifier.SMTP.Host != "" {
		return providers.NewSMTPSender(cfg.Notifier.SMTP)
	}
	return providers.NewLogSender(log)
}

// localTaskAPI adapts the task service to the recurrence worker's client
// interface, bypassing HTTP when both run in one process.
type localTaskAPI struct {
	svc *taskservice.Service
}

func (a *localTaskAPI) GetTask(ctx context.Context, actingUserID, taskID string) (*v1.Task, error) {
	task, err := a.svc.GetTask(ctx, actingUserID, taskID)
	if err != nil {
		return nil, err
	}
	return task.ToAPI(time.Now().UTC()), nil
}

func (a *localTaskAPI) CreateTask(ctx context.Context, actingUserID string, req *v1.CreateTaskRequest) (*v1.Task, error) {
	task, err := a.svc.CreateTask(ctx, actingUserID, req)
	if err != nil {
		return nil, err
	}
	return task.ToAPI(time.Now().UTC()), nil
}
