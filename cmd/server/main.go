package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"idregistry/internal/audit"
	"idregistry/internal/biometric/dedupe"
	"idregistry/internal/biometric/quality"
	"idregistry/internal/platform/config"
	"idregistry/internal/platform/httpserver"
	"idregistry/internal/platform/jwt"
	"idregistry/internal/platform/logger"
	"idregistry/internal/platform/postgres"
	platformredis "idregistry/internal/platform/redis"
	"idregistry/internal/registration/handler"
	regmetrics "idregistry/internal/registration/metrics"
	"idregistry/internal/registration/service"
	"idregistry/internal/registration/store"
	httptransport "idregistry/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	checks := map[string]httptransport.HealthCheck{}

	// Record store: Postgres when configured, in-memory otherwise.
	var records store.RecordStore
	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := store.EnsureSchema(ctx, db); err != nil {
			log.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		records = store.NewPostgres(db)
		checks["postgres"] = db.PingContext
		log.Info("using postgres record store")
	} else {
		records = store.NewInMemory()
		log.Warn("IDREG_POSTGRES_URL not set, using in-memory record store")
	}

	// Optional Redis read cache in front of the record store.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		records = store.NewCached(records, redisClient.Client, cfg.Redis.CacheTTL, log)
		checks["redis"] = redisClient.Health
		log.Info("registration read cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	// Audit sink: Kafka when brokers are configured, in-process otherwise.
	var publisher audit.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		publisher = kafkaPublisher
		log.Info("audit events publishing to kafka", "topic", cfg.Kafka.Topic)
	} else {
		publisher = audit.NewStorePublisher(audit.NewInMemoryStore(), audit.WithAsyncBuffer(256))
		log.Warn("IDREG_KAFKA_BROKERS not set, audit events stay in process")
	}
	defer publisher.Close()

	registrations := service.New(
		records,
		quality.NewClient(cfg.Quality.BaseURL, cfg.Quality.Timeout),
		dedupe.NewClient(cfg.Dedupe.BaseURL, cfg.Dedupe.Timeout),
		service.WithLogger(log),
		service.WithMetrics(regmetrics.New()),
		service.WithAuditPublisher(publisher),
	)

	jwtService := jwt.NewService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	router := httptransport.NewRouter(
		handler.New(registrations, log),
		jwt.NewMiddlewareAdapter(jwtService),
		log,
		checks,
	)

	srv := httpserver.New(cfg.Server.Addr, router)
	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
