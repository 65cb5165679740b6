package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/credrisk/diligence-engine/internal/config"
	"github.com/credrisk/diligence-engine/internal/logging"
	"github.com/credrisk/diligence-engine/internal/models"
	"github.com/credrisk/diligence-engine/internal/report"
	"github.com/credrisk/diligence-engine/internal/research"
	"github.com/credrisk/diligence-engine/internal/store"
)

// The worker consumes report tasks written by completing jobs and renders
// the final reports. It runs detached from the API server so report latency
// or failure never touches a job's recorded status.
func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Sync()

	pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connect", zap.Error(err))
	}
	defer pgPool.Close()
	pgStore := store.NewPostgresStore(pgPool)
	if err := pgStore.Migrate(ctx); err != nil {
		logger.Fatal("postgres migrate", zap.Error(err))
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal("mongo connect", zap.Error(err))
	}
	defer mongoClient.Disconnect(ctx)
	mongoStore := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))

	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	minioStore, err := store.NewMinioStore(
		ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
	)
	if err != nil {
		logger.Fatal("minio connect", zap.Error(err))
	}

	synthesizer := research.NewSynthesizer(research.SynthesizerConfig{
		APIKey:     cfg.SynthesisAPIKey,
		BaseURL:    cfg.SynthesisBaseURL,
		Model:      cfg.SynthesisModel,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
	}, logger)

	assembler := report.NewAssembler(
		pgStore, mongoStore, minioStore, store.NewLocker(rdb), synthesizer,
		cfg.ReportTTL, logger,
	)

	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	tasks := make(chan models.ReportTask, concurrency)

	// Dispatcher: claim queued tasks with SKIP LOCKED and hand them to the
	// workers.
	go func() {
		ticker := time.NewTicker(cfg.WorkerPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(tasks)
				return
			case <-ticker.C:
				for {
					task, found, err := pgStore.ClaimNextReportTask(ctx)
					if err != nil {
						if ctx.Err() == nil {
							logger.Error("task claim failed", zap.Error(err))
						}
						break
					}
					if !found {
						break
					}
					tasks <- task
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				process(ctx, pgStore, assembler, task, logger)
			}
		}()
	}

	logger.Info("report worker running", zap.Int("concurrency", concurrency))
	<-ctx.Done()
	wg.Wait()
}

func process(ctx context.Context, pgStore *store.PostgresStore, assembler *report.Assembler, task models.ReportTask, logger *zap.Logger) {
	log := logger.With(zap.String("task_id", task.ID), zap.String("request_id", task.RequestID))

	_, err := assembler.Generate(ctx, task.RequestID)
	switch {
	case err == nil, errors.Is(err, report.ErrAlreadyGenerated):
		if err := pgStore.FinishReportTask(ctx, task.ID, true); err != nil {
			log.Error("task finish failed", zap.Error(err))
		}
	case errors.Is(err, report.ErrNotReady):
		// A failed sibling job can leave the request permanently not ready;
		// requeue caps attempts so the task eventually parks as failed.
		log.Warn("request not ready for report, requeueing", zap.Error(err))
		if err := pgStore.RequeueReportTask(ctx, task.ID); err != nil {
			log.Error("task requeue failed", zap.Error(err))
		}
	default:
		log.Error("report generation failed", zap.Error(err))
		if task.Attempts >= 5 {
			if err := pgStore.FinishReportTask(ctx, task.ID, false); err != nil {
				log.Error("task finish failed", zap.Error(err))
			}
			return
		}
		if err := pgStore.RequeueReportTask(ctx, task.ID); err != nil {
			log.Error("task requeue failed", zap.Error(err))
		}
	}
}
