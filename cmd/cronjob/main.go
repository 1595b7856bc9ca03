package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"cashback-ledger/internal/config"
	"cashback-ledger/internal/events"
	"cashback-ledger/internal/jobs"
	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/metrics"
	"cashback-ledger/internal/repository/postgres"
	"cashback-ledger/internal/scheduler"
	"cashback-ledger/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'expire-cashback', 'all-nightly')")
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
	logger.Info("Starting Cashback Cronjob Runner...", "log_level", cfg.Log.Level)

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Initialize Repositories
	store := postgres.NewStore(db)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.KafkaEnabled() {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic,
			time.Duration(cfg.Kafka.WriteTimeoutSeconds)*time.Second)
	}
	defer publisher.Close()

	// Job metrics stay in process; the cronjob exposes no endpoint.
	cashbackSvc := service.NewCashbackService(store, publisher, metrics.NewLedgerMetrics(prometheus.NewRegistry()), service.Options{
		ExpireBatchSize: cfg.Cashback.ExpireBatchSize,
		DefaultPageSize: int32(cfg.Cashback.DefaultPageSize),
		MaxPageSize:     int32(cfg.Cashback.MaxPageSize),
	})

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(&jobs.Services{Cashback: cashbackSvc}, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.", "next_run", cronScheduler.Next())

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "expire-cashback":
		jobRunner.ExpireCashback()
	case "all-nightly":
		jobRunner.RunAllNightlyJobs()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - expire-cashback\n")
		fmt.Printf("  - all-nightly\n")
		os.Exit(1)
	}
}
