package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mhrncir/parlsync/internal/config"
	"github.com/mhrncir/parlsync/internal/ingest"
	"github.com/mhrncir/parlsync/internal/ingest/persist"
	"github.com/mhrncir/parlsync/internal/ingest/resolve"
	"github.com/mhrncir/parlsync/internal/ingest/status"
	"github.com/mhrncir/parlsync/internal/ingest/upstream"
	"github.com/mhrncir/parlsync/internal/queue"
	"github.com/mhrncir/parlsync/internal/worker"
	"github.com/mhrncir/parlsync/internal/worker/domain"
	"github.com/mhrncir/parlsync/shared/logger"
	"github.com/mhrncir/parlsync/shared/postgresql"
	"github.com/mhrncir/parlsync/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	db := dbClient.GetDB()
	policies := queue.PoliciesFromConfig(cfg.Jobs)

	jobStorage := queue.NewStorage(db, appLogger.Logger)
	jobQueue := queue.New(jobStorage, rabbitClient, policies, appLogger.Logger)
	ledger := status.NewLedger(db, appLogger.Logger)

	upstreamClient := upstream.NewClient(&upstream.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		RequestTimeout: cfg.Upstream.RequestTimeout,
	}, appLogger.Logger)

	recordStore := persist.NewStore(db, appLogger.Logger)
	roster := resolve.NewSQLRoster(db)

	runners := map[string]ingest.Runner{
		domain.JobTypeVotes: ingest.NewVotesRunner(upstreamClient, recordStore, roster, appLogger.Logger, ingest.VotesRunnerConfig{
			Term:         cfg.Upstream.Term,
			SittingLimit: cfg.Upstream.SittingLimit,
			VoteDelay:    cfg.Upstream.VoteDelay,
		}),
		domain.JobTypeBills:  ingest.NewBillsRunner(upstreamClient, recordStore, appLogger.Logger, cfg.Upstream.Term),
		domain.JobTypeScores: ingest.NewScoresRunner(recordStore, appLogger.Logger),
	}

	w := worker.NewWorker(&worker.Config{
		Logger:            appLogger.Logger,
		RabbitClient:      rabbitClient,
		Queue:             jobQueue,
		Ledger:            ledger,
		Runners:           runners,
		Policies:          policies,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutdown signal received")
	case err := <-errChan:
		if err != nil {
			appLogger.Error("Worker failed", slog.Any("error", err))
			return err
		}
	}

	cancel()

	shutdownDone := make(chan struct{})
	go func() {
		w.Stop()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		appLogger.Info("Worker shutdown complete")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timed out")
	}

	if dbClient != nil {
		dbClient.Close()
	}
	if rabbitClient != nil {
		rabbitClient.Close()
	}

	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client with one queue per job type
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		ExchangeName:      cfg.Exchange.Name,
		ExchangeType:      cfg.Exchange.Type,
		Queues:            domain.JobTypes,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
