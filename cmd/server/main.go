package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/JarudeC/privacylens/internal/analysis"
	"github.com/JarudeC/privacylens/internal/domain/port"
	"github.com/JarudeC/privacylens/internal/infra/config"
	"github.com/JarudeC/privacylens/internal/infra/detector"
	"github.com/JarudeC/privacylens/internal/infra/email"
	"github.com/JarudeC/privacylens/internal/infra/ffmpeg"
	"github.com/JarudeC/privacylens/internal/infra/httpapi"
	"github.com/JarudeC/privacylens/internal/infra/metrics"
	miniostorage "github.com/JarudeC/privacylens/internal/infra/minio"
	"github.com/JarudeC/privacylens/internal/infra/postgres"
	"github.com/JarudeC/privacylens/internal/infra/rabbitmq"
	"github.com/JarudeC/privacylens/internal/infra/tracing"
	"github.com/JarudeC/privacylens/internal/infra/workerpool"
	"github.com/JarudeC/privacylens/internal/redaction"
	"github.com/JarudeC/privacylens/internal/retention"
	"github.com/JarudeC/privacylens/internal/usecase"
	"github.com/JarudeC/privacylens/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting privacylens-api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	if cfg.OTLPEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint)
		if err != nil {
			log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
		} else {
			defer tp.Shutdown(ctx)
		}
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Migrations
	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:        cfg.MinIOEndpoint,
		AccessKey:       cfg.MinIOAccessKey,
		SecretKey:       cfg.MinIOSecretKey,
		UseSSL:          cfg.MinIOUseSSL,
		SourceBucket:    cfg.MinIOSourceBucket,
		SnapshotBucket:  cfg.MinIOSnapshotBucket,
		ProtectedBucket: cfg.MinIOProtectedBucket,
		URLExpiry:       cfg.ArtifactURLExpiry,
		MaxAttempts:     cfg.StorageMaxAttempts,
		RetryBaseDelay:  cfg.StorageRetryDelay,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// Event publisher (optional)
	var publisher port.EventPublisher = rabbitmq.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
		fatalOnErr(err, "connect to rabbitmq")
		defer rmqConn.Close()

		publisher, err = rabbitmq.NewEventPublisher(rmqConn, cfg.RabbitMQExchange)
		fatalOnErr(err, "create event publisher")
	}

	// Failure notifier (optional)
	var notifier port.FailureNotifier = email.NopNotifier{}
	if cfg.SMTPHost != "" {
		notifier = email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.NotificationTo, log)
	}

	// Infra adapters
	repo := postgres.NewJobRepository(pool)
	sampler := ffmpeg.NewSampler(cfg.FFmpegBin, cfg.FFprobeBin, cfg.SampleFPS, log)
	pipeline := ffmpeg.NewPipeline(cfg.FFmpegBin)
	infer := detector.NewClient(cfg.InferenceURL, cfg.InferenceTimeout)
	if err := infer.Healthy(ctx); err != nil {
		log.Warn("inference service not reachable at startup", zap.Error(err))
	}

	// Pipeline components
	aggregator := analysis.NewAggregator(cfg.ConfidenceFloor, cfg.IoUThreshold, analysis.DefaultSeverityPolicy())
	planner := redaction.NewPlanner(cfg.IoUThreshold)
	renderer := redaction.NewRenderer(pipeline, cfg.BoxPadding, cfg.BlurSigma)

	pipelinePool := workerpool.New(cfg.WorkerCount, cfg.WorkerCount*2)
	defer pipelinePool.Shutdown()

	fatalOnErr(os.MkdirAll(cfg.TempDir, 0o755), "create temp dir")

	analyzeUC := usecase.NewAnalyzeVideoUseCase(
		repo, storage, sampler, infer, aggregator,
		publisher, notifier, pipelinePool, log,
		cfg.TempDir, cfg.DetectorConcurrency, cfg.DetectorFailureCeiling,
	)
	protectUC := usecase.NewProtectVideoUseCase(
		repo, storage, sampler, planner, renderer,
		publisher, notifier, pipelinePool, log, cfg.TempDir,
	)

	// Metrics server
	metricsSrv := metrics.StartServer(ctx, cfg.MetricsPort, log)

	// Retention cleanup
	cleaner := retention.NewCleaner(repo, storage, cfg.RetentionWindow, log)
	fatalOnErr(cleaner.Start(cfg.CleanupSchedule), "schedule retention cleanup")

	// HTTP API
	handler := httpapi.NewVideoHandler(analyzeUC, protectUC, log)
	app := httpapi.NewApp(handler, cfg.MaxUploadSize, log)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.ServerPort)); err != nil {
			log.Error("api server error", zap.Error(err))
			cancel()
		}
	}()

	log.Info("privacylens-api started", zap.Int("port", cfg.ServerPort))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("api shutdown error", zap.Error(err))
	}
	metricsSrv.Shutdown(shutdownCtx)
	cleaner.Stop()

	log.Info("privacylens-api stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
