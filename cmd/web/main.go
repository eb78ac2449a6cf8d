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

	"github.com/noah-isme/volunteer-hub-web/internal/config"
	"github.com/noah-isme/volunteer-hub-web/internal/database"
	"github.com/noah-isme/volunteer-hub-web/internal/handler"
	"github.com/noah-isme/volunteer-hub-web/internal/middleware"
	"github.com/noah-isme/volunteer-hub-web/internal/models"
	"github.com/noah-isme/volunteer-hub-web/internal/repository"
	"github.com/noah-isme/volunteer-hub-web/internal/router"
	"github.com/noah-isme/volunteer-hub-web/internal/service"
	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
	cloud "github.com/noah-isme/volunteer-hub-web/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.TempUpload{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	var thumbnails service.ThumbnailBuilder
	if cfg.CloudinaryCloudName != "" {
		thumbnailer, err := cloud.New(cloud.Config{
			CloudName:      cfg.CloudinaryCloudName,
			APIKey:         cfg.CloudinaryAPIKey,
			APISecret:      cfg.CloudinaryAPISecret,
			Transformation: cfg.CloudinaryTransformation,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		thumbnails = thumbnailer
	}

	apiClient, err := activityapi.New(activityapi.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create activities api client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger := repository.NewTempUploadRepository(db)

	uploadCfg := service.DefaultUploadConfig()
	uploadCfg.MaxBytes = cfg.UploadMaxBytes
	uploadCfg.MaxRetries = cfg.UploadMaxRetries
	uploadCfg.AttemptTimeout = cfg.UploadAttemptTimeout
	uploadService := service.NewUploadService(apiClient, uploadCfg, logger)

	changeBus := service.NewActivityChangeBus(redisClient, cfg.EventChannelBase, natsConn, logger)
	publicService := service.NewPublicActivityService(apiClient, redisClient, thumbnails, cfg.PublicCacheTTL, cfg.Locale, logger)
	changeBus.Handle(func(event service.ActivityChangeEvent) {
		invalidateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := publicService.Invalidate(invalidateCtx); err != nil {
			logger.Warn().Err(err).Str("action", event.Action).Msg("failed to invalidate public activity cache")
		}
	})
	if err := changeBus.Start(ctx); err != nil {
		log.Fatalf("failed to subscribe to activity changes: %v", err)
	}

	sessions := service.NewDashboardSessionStore(service.DashboardSessionConfig{
		API:            apiClient,
		Uploads:        uploadService,
		Ledger:         ledger,
		Events:         changeBus,
		Validator:      validate,
		Locale:         cfg.Locale,
		KeywordDelay:   service.DefaultKeywordDebounce,
		RequestTimeout: cfg.RequestTimeout,
	}, cfg.DashboardSessionTTL, logger)
	go sessions.Run(ctx, time.Minute)

	sweeper := service.NewTempUploadSweeper(ledger, apiClient, service.TempUploadSweeperConfig{TTL: cfg.TempUploadTTL}, logger)
	go sweeper.Run(ctx, cfg.TempSweepInterval)

	lock := middleware.NewDashboardLock(cfg.DashboardLockSecret, cfg.DashboardSessionTTL, cfg.IsProduction())

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.UploadMaxBytes)*10 + 1<<20,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSAllowOrigins,
		Production:   cfg.IsProduction(),
	})
	router.Register(app, cfg, router.Dependencies{
		PublicActivityHandler:    handler.NewPublicActivityHandler(publicService, logger),
		DashboardAuthHandler:     handler.NewDashboardAuthHandler(sessions, lock, cfg.DashboardPassword, validate, logger),
		DashboardActivityHandler: handler.NewDashboardActivityHandler(sessions, validate, logger),
		DashboardFormHandler:     handler.NewDashboardFormHandler(sessions, validate, cfg.UploadMaxBytes, logger),
		NotificationHandler:      handler.NewNotificationHandler(sessions, logger, 30*time.Second),
		DashboardLock:            lock,
		UnlockLimiter:            middleware.RateLimit("dashboard_unlock", cfg.UnlockRateLimit, time.Minute),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(ctx, app, sessions)
}

func waitForShutdown(ctx context.Context, app *fiber.App, sessions *service.DashboardSessionStore) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	sessions.CloseAll()

	log.Println("server stopped")
}
