package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ravi-anand/chatwave-api/internal/auth"
	"github.com/ravi-anand/chatwave-api/internal/config"
	"github.com/ravi-anand/chatwave-api/internal/database"
	"github.com/ravi-anand/chatwave-api/internal/handler"
	"github.com/ravi-anand/chatwave-api/internal/middleware"
	"github.com/ravi-anand/chatwave-api/internal/repository"
	"github.com/ravi-anand/chatwave-api/internal/router"
	"github.com/ravi-anand/chatwave-api/internal/service"
	cloud "github.com/ravi-anand/chatwave-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Redis and NATS are optional; a single-node deployment runs without
	// either, losing only the latest-message cache and cross-node relay.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	authService := service.NewAuthService(userRepo, tokens, validate, logger)
	userService := service.NewUserService(userRepo, uploader, validate, cfg.AvatarMaxBytes, logger)
	messageService := service.NewMessageService(messageRepo, chatRepo, redisClient, cfg.EventChannelBase, cfg.LatestMessageCacheTTL, validate, logger)
	chatService := service.NewChatService(chatRepo, userRepo, messageService, validate, logger)
	realtimeService := service.NewRealtimeService(redisClient, cfg.EventChannelBase, natsConn, logger)

	runCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()
	realtimeService.Start(runCtx)

	userHandler := handler.NewUserHandler(userService, authService, logger)
	chatHandler := handler.NewChatHandler(chatService, logger)
	messageHandler := handler.NewMessageHandler(messageService, logger)
	realtimeHandler := handler.NewRealtimeHandler(realtimeService, tokens, userRepo, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		UserHandler:     userHandler,
		ChatHandler:     chatHandler,
		MessageHandler:  messageHandler,
		RealtimeHandler: realtimeHandler,
		JWTMiddleware:   middleware.JWTProtected(tokens, userRepo),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, stopConsumers)
}

func waitForShutdown(app *fiber.App, stopConsumers context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	stopConsumers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
