package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	grpcapi "cashback-ledger/internal/api/grpc"
	httpapi "cashback-ledger/internal/api/http"
	"cashback-ledger/internal/config"
	"cashback-ledger/internal/events"
	"cashback-ledger/internal/idempotency"
	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/metrics"
	"cashback-ledger/internal/migrate"
	"cashback-ledger/internal/repository/postgres"
	"cashback-ledger/internal/security"
	"cashback-ledger/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.InitializeWithFile(cfg.Log.Level, cfg.Log.Format, &logger.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	logger.Info("Starting Cashback Ledger...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "grpc_port", cfg.Server.GRPCPort)
	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	if cfg.Database.MigrateOnStart {
		if err := migrate.Run(db); err != nil {
			logger.Error("Failed to apply migrations", "error", err)
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	}

	store := postgres.NewStore(db)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, cfg.Database.Database),
	)
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	// Ledger events
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.KafkaEnabled() {
		logger.Info("Publishing ledger events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.EventsTopic)
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic,
			time.Duration(cfg.Kafka.WriteTimeoutSeconds)*time.Second)
	}
	defer publisher.Close()

	cashbackSvc := service.NewCashbackService(store, publisher, ledgerMetrics, service.Options{
		ExpireBatchSize: cfg.Cashback.ExpireBatchSize,
		DefaultPageSize: int32(cfg.Cashback.DefaultPageSize),
		MaxPageSize:     int32(cfg.Cashback.MaxPageSize),
	})

	// Idempotency cache
	var idem idempotency.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("Failed to ping redis", "addr", cfg.Redis.Addr, "error", err)
			log.Fatalf("Failed to ping redis: %v", err)
		}
		logger.Info("Using redis idempotency cache", "addr", cfg.Redis.Addr)
		idem = idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL())
	} else {
		logger.Info("Using in-memory idempotency cache")
		idem = idempotency.NewMemoryStore(cfg.IdempotencyTTL())
	}

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer,
		time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute,
		time.Duration(cfg.JWT.ServiceTokenExpiry)*time.Minute)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Service:      cashbackSvc,
		TokenManager: tokenManager,
		Idempotency:  idem,
		Database:     store,
		Gatherer:     registry,
	})
	httpServer := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// gRPC health server
	if cfg.Server.GRPCPort != 0 {
		healthServer := grpcapi.NewHealthServer(store, 10*time.Second)
		grpcServer := healthServer.NewServer()
		lis, err := net.Listen("tcp", cfg.GetGRPCAddress())
		if err != nil {
			logger.Error("Failed to listen", "error", err, "address", cfg.GetGRPCAddress())
			log.Fatalf("Failed to listen: %v", err)
		}
		go healthServer.Run(ctx)
		go func() {
			logger.Info("gRPC health server listening", "address", cfg.GetGRPCAddress())
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		defer grpcServer.GracefulStop()
	}

	// Sale lifecycle consumer
	if cfg.KafkaEnabled() {
		consumer := events.NewSaleConsumer(cfg.Kafka.Brokers, cfg.Kafka.SalesTopic, cfg.Kafka.GroupID, cashbackSvc)
		defer consumer.Close()
		go func() {
			logger.Info("Consuming sale events", "topic", cfg.Kafka.SalesTopic, "group", cfg.Kafka.GroupID)
			if err := consumer.Run(ctx); err != nil {
				errCh <- fmt.Errorf("sale consumer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		logger.Error("Component failed, shutting down", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("Cashback Ledger stopped. Goodbye!")
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeMinutes) * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
