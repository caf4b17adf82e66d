package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/conversation-service/internal/api/http"
	"github.com/spec-kit/conversation-service/internal/api/http/handlers"
	"github.com/spec-kit/conversation-service/internal/auth"
	"github.com/spec-kit/conversation-service/internal/config"
	"github.com/spec-kit/conversation-service/internal/events"
	"github.com/spec-kit/conversation-service/internal/observability"
	"github.com/spec-kit/conversation-service/internal/persistence"
	"github.com/spec-kit/conversation-service/internal/repository"
	"github.com/spec-kit/conversation-service/internal/service"
	"github.com/spec-kit/conversation-service/internal/session"
	"github.com/spec-kit/conversation-service/internal/stream"
	"github.com/spec-kit/conversation-service/internal/txn"
	"github.com/spec-kit/conversation-service/internal/upload"
	"github.com/spec-kit/conversation-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	metrics := observability.NewMetrics()

	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	unitRepo := repository.NewUnitRepository(pool)
	requesterRepo := repository.NewRequesterRepository(pool)
	responderRepo := repository.NewResponderRepository(pool)

	notifier := stream.NewRedisNotifier(redis.Client, logger)
	coordinator := txn.NewCoordinator(pool, notifier, metrics, logger)
	directory := stream.NewDirectory(ticketRepo, notifier, metrics, logger)
	messageLog := stream.NewMessageLog(messageRepo, notifier, metrics, logger)

	storage, err := upload.NewStorage(cfg.Storage)
	if err != nil {
		logger.Fatal("failed to init blob storage", zap.Error(err))
	}
	uploader := upload.NewUploader(storage, metrics, logger)

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	conversationService := service.NewConversationService(service.ConversationDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		Committer:   coordinator,
		Notifier:    notifier,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		RequesterRepo: requesterRepo,
		ResponderRepo: responderRepo,
	})
	authMiddleware := auth.NewMiddleware(authService.TokenManager(), requesterRepo, responderRepo)

	ticketLimits := upload.Constraints{
		MaxSizeBytes:         cfg.Upload.TicketMaxBytes,
		AcceptedTypePatterns: cfg.Upload.AcceptedTypes,
	}
	chatLimits := upload.Constraints{
		MaxSizeBytes:         cfg.Upload.ChatMaxBytes,
		AcceptedTypePatterns: cfg.Upload.AcceptedTypes,
	}

	sessionsHandler := handlers.NewSessionsHandler(session.Dependencies{
		Directory:     directory,
		Logs:          messageLog,
		Conversations: conversationService,
		Uploader:      uploader,
		Metrics:       metrics,
		Logger:        logger,
	}, ticketLimits, chatLimits, logger)
	defer sessionsHandler.StopAll()

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: int(cfg.Upload.TicketMaxBytes) * 2,
	})
	httptransport.RegisterMiddlewares(app, logger, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(),
		Auth:           handlers.NewAuthHandler(authService),
		Conversations:  handlers.NewConversationsHandler(ticketRepo, unitRepo, conversationService, uploader, ticketLimits),
		Sessions:       sessionsHandler,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
