package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"creativeflow/internal/bootstrap"
	"creativeflow/internal/http/handlers"
	"creativeflow/internal/http/httpapi"
	"creativeflow/internal/infra"
	"creativeflow/internal/infra/geoip"
	"creativeflow/internal/worker"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "creativeflow-api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline")
	}
	defer rt.Close()

	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	// The in-memory store is private to this process, so queued work and
	// expiry have to be handled here.
	if cfg.StoreDriver == infra.StoreDriverMemory {
		sweeper, err := worker.NewSweeper(cfg.ExpirySweepSchedule, rt.Driver, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("schedule", cfg.ExpirySweepSchedule).Msg("invalid expiry schedule")
		}
		sweeper.Start()
		defer sweeper.Stop()
		if cfg.PipelineAsync {
			go func() { _ = worker.New(rt.Driver, rt.Driver, cfg.WorkerPollInterval, logger).Run(ctx) }()
		}
	}

	app := handlers.NewApp(rt.Driver, rt.Personas, cfg.PipelineAsync, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   resolver.Lookup(),
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("store", cfg.StoreDriver).
			Str("text_provider", cfg.TextProvider).
			Str("image_provider", cfg.ImageProvider).
			Bool("async", cfg.PipelineAsync).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
