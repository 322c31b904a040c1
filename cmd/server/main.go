package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bracket-live/internal/aggregator"
	"github.com/bracket-live/internal/config"
	"github.com/bracket-live/internal/edge"
	"github.com/bracket-live/internal/handler"
	"github.com/bracket-live/internal/kafka"
	"github.com/bracket-live/internal/postgres"
	"github.com/bracket-live/internal/redis"
	"github.com/bracket-live/internal/service"
	"github.com/bracket-live/internal/stream"
	"github.com/bracket-live/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	store, err := redis.NewStore(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	hub := stream.NewHub(logger)
	go hub.Run()

	votingService := service.NewVotingService(repo, logger)
	cache := edge.NewCache(store, &cfg.Edge, logger)

	var scheduler *worker.Scheduler
	if cfg.Aggregator.Enabled {
		agg := aggregator.New(repo, store, store, store, &cfg.Aggregator, logger)
		scheduler = worker.NewScheduler(agg, cfg.Aggregator.Interval, logger)
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("failed to start aggregation scheduler", "error", err)
			os.Exit(1)
		}
	}

	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, votingService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		}
	}

	httpHandler := handler.NewHandler(votingService, cache, hub, &cfg.Edge, logger)
	httpHandler.AddReadinessCheck("redis", store)
	httpHandler.AddReadinessCheck("postgres", repo)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// open streams never go idle, end them before draining
	hub.Stop()

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			logger.Error("failed to stop aggregation scheduler", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
