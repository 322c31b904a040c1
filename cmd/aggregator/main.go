package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bracket-live/internal/aggregator"
	"github.com/bracket-live/internal/config"
	"github.com/bracket-live/internal/domain"
	"github.com/bracket-live/internal/postgres"
	"github.com/bracket-live/internal/redis"
	"github.com/bracket-live/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single aggregation pass and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	})).With("component", "aggregator")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := redis.NewStore(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	agg := aggregator.New(repo, store, store, store, &cfg.Aggregator, logger)
	scheduler := worker.NewScheduler(agg, cfg.Aggregator.Interval, logger)

	logger.Info("aggregator configured",
		"interval", cfg.Aggregator.Interval,
		"top_n", cfg.Aggregator.TopN,
		"active_user_policy", agg.Policy(),
	)

	if *once {
		if err := scheduler.RunOnce(ctx); err != nil && !errors.Is(err, domain.ErrLeaseHeld) {
			os.Exit(1)
		}
		return
	}

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("failed to start aggregation scheduler", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down aggregator...")

	if err := scheduler.Stop(); err != nil {
		logger.Error("failed to stop aggregation scheduler", "error", err)
	}
}
