package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/credrisk/diligence-engine/internal/api"
	"github.com/credrisk/diligence-engine/internal/config"
	"github.com/credrisk/diligence-engine/internal/engine"
	"github.com/credrisk/diligence-engine/internal/logging"
	"github.com/credrisk/diligence-engine/internal/middleware"
	"github.com/credrisk/diligence-engine/internal/models"
	"github.com/credrisk/diligence-engine/internal/research"
	"github.com/credrisk/diligence-engine/internal/store"
)

// jobStarter runs jobs detached from the HTTP request that created them.
// The job's own context is independent so a closed connection never aborts
// research in flight.
type jobStarter struct {
	runner *engine.Runner
	log    *zap.Logger
}

func (s *jobStarter) Start(job *models.ResearchJob, scope string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Minute)
		defer cancel()
		if err := s.runner.Run(ctx, job, scope); err != nil {
			s.log.Error("job run ended with error",
				zap.String("job_id", job.ID), zap.Error(err))
		}
	}()
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Sync()

	// ── PostgreSQL ────────────────────────────────────────────
	pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connect", zap.Error(err))
	}
	defer pgPool.Close()
	pgStore := store.NewPostgresStore(pgPool)
	if err := pgStore.Migrate(ctx); err != nil {
		logger.Fatal("postgres migrate", zap.Error(err))
	}

	// ── MongoDB ──────────────────────────────────────────────
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal("mongo connect", zap.Error(err))
	}
	defer mongoClient.Disconnect(ctx)
	mongoStore := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))

	// ── MinIO ────────────────────────────────────────────────
	minioStore, err := store.NewMinioStore(
		ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
	)
	if err != nil {
		logger.Fatal("minio connect", zap.Error(err))
	}

	// ── Collaborator clients ─────────────────────────────────
	collector := research.NewCollector(research.CollectorConfig{
		APIKey:            cfg.ResearchAPIKey,
		BaseURL:           cfg.ResearchBaseURL,
		Model:             cfg.ResearchModel,
		Timeout:           cfg.RequestTimeout,
		MaxRetries:        cfg.MaxRetries,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, logger)

	synthesizer := research.NewSynthesizer(research.SynthesizerConfig{
		APIKey:     cfg.SynthesisAPIKey,
		BaseURL:    cfg.SynthesisBaseURL,
		Model:      cfg.SynthesisModel,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
	}, logger)

	// ── Engine ───────────────────────────────────────────────
	runner := engine.NewRunner(pgStore, mongoStore, collector, synthesizer, cfg.IterationDelay, logger)
	starter := &jobStarter{runner: runner, log: logger}

	// ── Router ───────────────────────────────────────────────
	handler := api.NewHandler(pgStore, starter, minioStore, logger)

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestMeta)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	handler.Routes(r)

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}

	go func() {
		logger.Info("engine listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
}
