package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/tutorlink-api/internal/config"
	"github.com/noah-isme/tutorlink-api/internal/database"
	"github.com/noah-isme/tutorlink-api/internal/handler"
	"github.com/noah-isme/tutorlink-api/internal/middleware"
	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/repository"
	"github.com/noah-isme/tutorlink-api/internal/router"
	"github.com/noah-isme/tutorlink-api/internal/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Booking{},
		&models.GuardianChild{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.MessageRead{},
		&models.AuthorizationAuditLog{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL, cfg.RedisPoolSize)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, security alerts will not use redis")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, security alerts will not use nats")
			natsConn = nil
		} else {
			defer natsConn.Drain()
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	facts := service.NewRelationshipFacts(repository.NewBookingRepository(db), repository.NewGuardianChildRepository(db))

	var publisher service.SecurityAlertPublisher
	if redisClient != nil || natsConn != nil {
		publisher = service.NewSecurityAlertPublisher(redisClient, cfg.RealtimeChannel, natsConn, logger)
	}

	auditService := service.NewAuthorizationAuditService(auditRepo, publisher, logger)
	policy := service.NewMessagingPolicy(conversationRepo, userRepo, service.NewRoleRuleResolver(facts), auditService, logger)
	conversationService := service.NewConversationService(
		conversationRepo,
		messageRepo,
		userRepo,
		policy,
		auditService,
		service.AnomalyPolicy{Threshold: cfg.SuspiciousThreshold, Window: cfg.SuspiciousWindow},
		validate,
		logger,
	)

	app := router.NewApp(cfg)

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLogging: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		MessagingHandler:          handler.NewMessagingHandler(conversationService, logger),
		AuthorizationAuditHandler: handler.NewAuthorizationAuditHandler(auditService, logger),
		JWTMiddleware:             middleware.JWTProtected(cfg.JWTSecret),
		HealthDependencies:        healthDependencies(db, redisClient),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}

func healthDependencies(db *gorm.DB, redisClient *redis.Client) []handler.HealthDependency {
	deps := []handler.HealthDependency{{
		Name: "postgres",
		Ping: func(ctx context.Context) error { return database.Ping(ctx, db) },
	}}
	if redisClient != nil {
		deps = append(deps, handler.HealthDependency{
			Name: "redis",
			Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return deps
}
