package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chatflow/workflow-core/internal/adapters/blobstore"
	"github.com/chatflow/workflow-core/internal/adapters/cache"
	adapterhttp "github.com/chatflow/workflow-core/internal/adapters/http"
	"github.com/chatflow/workflow-core/internal/adapters/messaging"
	"github.com/chatflow/workflow-core/internal/adapters/persistence"
	"github.com/chatflow/workflow-core/internal/engine"
	"github.com/chatflow/workflow-core/internal/node/runtime"
	_ "github.com/chatflow/workflow-core/internal/node/runtime/nodes"
	"github.com/chatflow/workflow-core/internal/platform/config"
	"github.com/chatflow/workflow-core/internal/platform/database"
	"github.com/chatflow/workflow-core/internal/platform/health"
	"github.com/chatflow/workflow-core/internal/platform/logger"
	"github.com/chatflow/workflow-core/internal/platform/metrics"
	"github.com/chatflow/workflow-core/internal/platform/telemetry"
	"github.com/chatflow/workflow-core/internal/workflow/app/service"
	"github.com/chatflow/workflow-core/internal/workflow/domain/repository"
)

func main() {
	cfg, err := config.Load("workflowcore")
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.NewZap(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()
	httpLog := logger.New(cfg.Logger)

	log.Info("starting workflow core", zap.String("version", cfg.Version), zap.Int("port", cfg.HTTP.Port))

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    cfg.Service.Name,
		JaegerEndpoint: cfg.Telemetry.JaegerEndpoint,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		log.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer tel.Close()

	met := metrics.NewMetrics(cfg.Service.Name)

	healthHandler := health.NewHandler(cfg.Service.Name, cfg.Version)

	store, dbForStats, closeStore := mustPersistenceAdapter(cfg, log, healthHandler)
	defer closeStore()

	redisCache, err := cache.NewRedisCache(cfg.Redis, cfg.Service.Name)
	if err != nil {
		log.Warn("redis unavailable, continuing without distributed cache", zap.Error(err))
	} else {
		defer redisCache.Close()
		redisCache.UseMetrics(met)
		healthHandler.AddCheck("redis", health.RedisChecker(redisCache.Health))
	}

	var sink messaging.Sink
	kafkaSink, err := messaging.NewKafkaSink(messaging.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
	if err != nil {
		log.Warn("kafka unavailable, falling back to in-memory message sink", zap.Error(err))
		sink = messaging.NewInMemorySink()
	} else {
		kafkaSink.UseMetrics(met)
		defer kafkaSink.Close()
		sink = kafkaSink
	}

	blobs, err := blobstore.NewS3Store(context.Background(), cfg.S3)
	if err != nil {
		log.Warn("s3 unavailable, exported workflows won't be archived", zap.Error(err))
		blobs = nil
	}

	scheduler := engine.NewScheduler(log)
	scheduler.Start()
	defer scheduler.Stop()
	registry := runtime.Default()

	manager := service.NewManager(store, registry, scheduler, sink, log)
	if redisCache != nil {
		manager.UseCache(redisCache)
	}
	if blobs != nil {
		manager.UseBlobStore(blobs)
	}
	manager.UseMetrics(met)
	manager.UseTracer(tel.Tracer())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := manager.Init(ctx); err != nil {
		cancel()
		log.Fatal("failed to initialize workflow manager", zap.Error(err))
	}
	cancel()

	router := adapterhttp.NewRouter(manager, registry)
	router.Use(logger.HTTPMiddleware(httpLog))
	router.Use(met.HTTPMetricsMiddleware())
	router.Handle("/metrics", met.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health/live", healthHandler.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", healthHandler.ReadinessHandler()).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	stopStats := reportDBStatsPeriodically(dbForStats, met, cfg.Service.PersistenceBackend)
	defer stopStats()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.HTTP.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("HTTP server error", zap.Error(err))
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("workflow core stopped gracefully")
}

// mustPersistenceAdapter builds the Persistence Adapter named by
// cfg.Service.PersistenceBackend, wiring the credential Encryptor into
// whichever backend is selected. dbForStats is non-nil only for the
// postgres backend, since that's the only one with a pool to sample.
func mustPersistenceAdapter(cfg *config.Config, log *zap.Logger, healthHandler *health.Handler) (repository.PersistenceAdapter, *database.DB, func()) {
	encCfg := persistence.DefaultEncryptorConfig()
	encCfg.Passphrase = cfg.Service.EncryptionPassphrase
	enc, err := persistence.NewEncryptor(encCfg)
	if err != nil {
		log.Fatal("failed to initialize credential encryptor", zap.Error(err))
	}

	switch cfg.Service.PersistenceBackend {
	case "postgres":
		db, err := database.New(cfg.Database)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		healthHandler.AddCheck("postgres", health.DatabaseChecker(db.HealthCheck))
		return persistence.NewPostgresAdapter(db, enc), db, func() { db.Close() }

	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		adapter, err := persistence.NewMongoAdapter(ctx, cfg.Mongo, enc)
		if err != nil {
			log.Fatal("failed to connect to mongo", zap.Error(err))
		}
		return adapter, nil, func() {}

	default:
		log.Info("using in-memory persistence adapter", zap.String("backend", cfg.Service.PersistenceBackend))
		return persistence.NewInMemoryAdapter(), nil, func() {}
	}
}

// reportDBStatsPeriodically samples the Postgres pool's connection gauges
// on a ticker, since sql.DB exposes no change notification for pool
// occupancy. A no-op (nil db, or a non-postgres backend) returns a no-op
// stop function.
func reportDBStatsPeriodically(db *database.DB, met *metrics.Metrics, dbName string) func() {
	if db == nil {
		return func() {}
	}
	ticker := time.NewTicker(15 * time.Second)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				db.ReportStats(met, dbName)
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}
