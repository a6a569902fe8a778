package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"cvbuilder/internal/config"
	"cvbuilder/internal/cv"
	"cvbuilder/internal/database"
	"cvbuilder/internal/logging"
	"cvbuilder/internal/metrics"
	"cvbuilder/internal/pdf"
	"cvbuilder/internal/persistence"
	"cvbuilder/internal/storage"
	"cvbuilder/internal/tasks"
	"cvbuilder/internal/worker"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.Setup(cfg.Log.Level)

	// worker 不执行迁移，避免与 api 并发
	dbCfg := cfg.Database
	dbCfg.MigrateOnStart = false
	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	writer := persistence.NewWriter(
		persistence.NewGormRowStore(db),
		persistence.WithMaxAttempts(cfg.Persistence.MaxWriteAttempts),
		persistence.WithLogger(logger),
	)
	repo := cv.NewRepository(writer)
	generator := pdf.NewRodGenerator(cfg.Worker.PDFTimeout, cfg.Worker.BrowserBin, logger)
	pdfHandler := worker.NewPDFTaskHandler(repo, storageClient, generator, redisClient, logger)

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      worker.NewAsynqLogger(logger),
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeCVPDFGenerate, pdfHandler)

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
