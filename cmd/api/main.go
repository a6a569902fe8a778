package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"cvbuilder/internal/access"
	"cvbuilder/internal/api"
	"cvbuilder/internal/auth"
	"cvbuilder/internal/config"
	"cvbuilder/internal/cv"
	"cvbuilder/internal/database"
	"cvbuilder/internal/entitlement"
	"cvbuilder/internal/logging"
	"cvbuilder/internal/persistence"
	"cvbuilder/internal/service"
	"cvbuilder/internal/storage"
	"cvbuilder/internal/subscription"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.Setup(cfg.Log.Level)

	logger.Info("api bootstrapping",
		slog.String("db_host", cfg.Database.Host),
		slog.Int("db_port", cfg.Database.Port),
		slog.String("db_name", cfg.Database.Name),
	)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready", slog.Bool("migrated", cfg.Database.MigrateOnStart))

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}

	authService, err := auth.NewAuthServiceFromConfig(cfg.Auth)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}
	sessions := auth.NewRedisSessions(redisClient, cfg.Auth.LoginLockThreshold, cfg.Auth.LoginLockTTL)

	writer := persistence.NewWriter(
		persistence.NewGormRowStore(db),
		persistence.WithMaxAttempts(cfg.Persistence.MaxWriteAttempts),
		persistence.WithLogger(logger),
	)
	repo := cv.NewRepository(writer)
	subs := subscription.NewStore(db)
	engine := entitlement.NewEngine(subs, repo, logger)
	policy := access.NewPolicy(repo, engine)
	cvService := service.NewCVService(repo, engine, policy, asynqClient, storageClient,
		service.WithLogger(logger),
		service.WithTaskMaxRetry(cfg.Worker.MaxRetry),
	)

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, api.Dependencies{
		DB:                    db,
		Auth:                  authService,
		Sessions:              sessions,
		CVs:                   cvService,
		Subscriptions:         subs,
		Assets:                storageClient,
		Scanner:               api.NewClamdScanner(cfg.Clamd.Addr),
		Subscriber:            redisClient,
		Logger:                logger,
		AllowedOrigins:        cfg.API.Origins(),
		LoginRateLimitPerHour: cfg.Auth.LoginRateLimitPerHour,
		CookieDomain:          cfg.Auth.CookieDomain,
	})

	address := fmt.Sprintf(":%d", cfg.API.Port)
	logger.Info("api listening", slog.String("address", address))
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
