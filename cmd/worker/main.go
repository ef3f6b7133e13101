package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"creativeflow/internal/bootstrap"
	"creativeflow/internal/infra"
	"creativeflow/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "creativeflow-worker")

	if cfg.StoreDriver != infra.StoreDriverPostgres {
		logger.Fatal().Msg("worker: DATABASE_URL is required, the in-memory store is not shared with the API")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build pipeline")
	}
	defer rt.Close()

	sweeper, err := worker.NewSweeper(cfg.ExpirySweepSchedule, rt.Driver, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.ExpirySweepSchedule).Msg("worker: invalid expiry schedule")
	}
	sweeper.Start()
	defer sweeper.Stop()

	w := worker.New(rt.Driver, rt.Driver, cfg.WorkerPollInterval, logger)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
