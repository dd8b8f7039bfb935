package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkin/internal/audit"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin"
	"ms-checkin/internal/checkin/checkin_api"
	checkindb "ms-checkin/internal/checkin/db"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/issuance"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/signature"
)

func connectDatabase(cfg *config.Config, log *logger.Logger) *bun.DB {
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open Postgres: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	log.Info("DATABASE", "Postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	if len(cfg.Signing.Keys) == 0 {
		log.Fatal("CONFIG", "CHECKIN_SIGNING_KEYS not set")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("CONFIG", "OPERATOR_JWT_SECRET not set")
	}

	signer, err := signature.NewService(cfg.Signing.Keys)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid signing keys: %v", err))
	}

	bunDB := connectDatabase(cfg, log)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}

	store := &checkindb.DB{Bun: bunDB}
	trail := audit.NewTrail(bunDB)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Warn("REDIS", fmt.Sprintf("Redis unreachable, stats cache disabled: %v", err))
			redisClient = nil
		} else {
			log.Info("REDIS", "Redis connection successful")
		}
	}

	var producer *kafka.Producer
	var consumer *kafka.Consumer
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.ScanOutcomes, cfg.Kafka.Topics.AttendeeImports}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic bootstrap failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.ScanOutcomes, log)
		defer producer.Close()

		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.AttendeeImports, cfg.Kafka.GroupID, store, log)
		defer consumer.Close()
		go consumer.Run(consumerCtx)
	}

	engine := checkin.NewEngine(store, signer, trail, publisherOrNil(producer), log)
	stats := checkin.NewStatsService(store, redisClient, log)
	issuer := issuance.NewService(store, signer, log)

	handler := &checkin_api.Handler{
		Engine:      engine,
		Stats:       stats,
		Audit:       trail,
		Issuer:      issuer,
		Logger:      log,
		ScanTimeout: cfg.Server.ScanTimeout,
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.JWTSecret, log))
		handler.Routes(r)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Check-in service on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopConsumer()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("SERVER", "Check-in service shutdown complete")
}

// publisherOrNil keeps the engine's publisher a nil interface when Kafka is
// disabled; a typed nil would dodge the engine's nil checks.
func publisherOrNil(p *kafka.Producer) checkin.OutcomePublisher {
	if p == nil {
		return nil
	}
	return p
}
