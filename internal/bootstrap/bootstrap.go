// Package bootstrap assembles the pipeline from configuration. The API
// server and the worker share it so both see the same providers, store and
// persona catalog.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"creativeflow/internal/adapter/repo"
	"creativeflow/internal/domain"
	"creativeflow/internal/infra"
	"creativeflow/internal/infra/credentials"
	"creativeflow/internal/persona"
	"creativeflow/internal/providers/image"
	"creativeflow/internal/providers/prompt"
	"creativeflow/internal/storage"
	"creativeflow/internal/workflow"
)

const providerHTTPTimeout = 120 * time.Second

// Runtime is everything a binary needs to serve the pipeline.
type Runtime struct {
	Driver   *workflow.Driver
	Personas *persona.Registry
	Store    domain.ExecutionRepository

	pool    *pgxpool.Pool
	archive *storage.Archive
}

// Close releases the database pool and archive codecs.
func (rt *Runtime) Close() {
	if rt.pool != nil {
		rt.pool.Close()
	}
	if rt.archive != nil {
		rt.archive.Close()
	}
}

// Build wires the pipeline. ctx bounds start-up work and the persona file watcher.
func Build(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	registry, err := InitPersonas(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.Personas = registry

	if err := rt.initStore(ctx, cfg, logger); err != nil {
		return nil, err
	}

	var archive domain.ExecutionArchive
	if cfg.ArchivePath != "" {
		store, err := storage.NewFileStore(absPath(cfg.ArchivePath))
		if err != nil {
			return nil, fmt.Errorf("archive store: %w", err)
		}
		rt.archive, err = storage.NewArchive(store)
		if err != nil {
			return nil, err
		}
		archive = rt.archive
		logger.Info().Str("path", store.BasePath()).Msg("execution archive enabled")
	}

	httpClient := &http.Client{Timeout: providerHTTPTimeout}
	textgen, err := NewTextGenerator(ctx, cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}
	images, err := NewImageGenerator(cfg, httpClient)
	if err != nil {
		return nil, err
	}

	rt.Driver = workflow.NewDriver(workflow.DriverOptions{
		Store:   rt.Store,
		Archive: archive,
		Enhancer: workflow.NewEnhancer(workflow.EnhancerOptions{
			TextGen:         textgen,
			MaxAttempts:     cfg.EnhanceMaxAttempts,
			BaseDelay:       cfg.RetryBaseDelay,
			MaxOutputTokens: cfg.EnhanceMaxOutputTokens,
			Logger:          logger,
		}),
		FanOut: workflow.NewFanOut(workflow.FanOutOptions{
			TextGen:         textgen,
			Images:          images,
			MaxAttempts:     cfg.PersonaMaxAttempts,
			BaseDelay:       cfg.RetryBaseDelay,
			MaxOutputTokens: cfg.PersonaMaxOutputTokens,
			MaxParallel:     cfg.MaxParallelBranches,
			Logger:          logger,
		}),
		Personas: registry,
		Gate: workflow.Gate{
			ClarifyOnQuestions: cfg.ClarifyOnQuestions,
			MaxRejectCycles:    cfg.MaxRejectCycles,
		},
		SuspendTTL:        cfg.SuspendTTL,
		RunLease:          cfg.RunLease,
		RequeueAbandoned:  cfg.PipelineAsync,
		DefaultAspectHint: cfg.DefaultAspectRatioHint,
		Logger:            logger,
	})
	ok = true
	return rt, nil
}

func (rt *Runtime) initStore(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) error {
	if cfg.StoreDriver != infra.StoreDriverPostgres {
		logger.Warn().Msg("using in-memory execution store, state is lost on restart")
		rt.Store = repo.NewExecutionRepositoryMemory()
		return nil
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	rt.pool = pool
	runner := infra.NewSQLRunner(pool, logger)
	pg := repo.NewExecutionRepository(runner)
	if err := pg.EnsureSchema(ctx); err != nil {
		return err
	}
	rt.Store = pg
	return applyStoredCredentials(ctx, cfg, credentials.NewStore(runner), logger)
}

// applyStoredCredentials lets keys saved with cmd/providerkey stand in for
// missing environment keys.
func applyStoredCredentials(ctx context.Context, cfg *infra.Config, store *credentials.Store, logger zerolog.Logger) error {
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("stored provider keys unavailable")
		return nil
	}
	applied, err := cfg.ApplyStoredKeys(keys)
	if err != nil {
		return err
	}
	if applied {
		logger.Info().Str("text_provider", cfg.TextProvider).Str("image_provider", cfg.ImageProvider).
			Msg("using stored provider keys")
	}
	return nil
}

// InitPersonas loads the catalog, applies PERSONAS_FILE and starts its watcher.
func InitPersonas(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*persona.Registry, error) {
	registry, err := persona.NewRegistry(cfg.Personas, logger)
	if err != nil {
		return nil, fmt.Errorf("personas: %w", err)
	}
	if cfg.PersonasFile == "" {
		return registry, nil
	}
	if err := registry.LoadFile(cfg.PersonasFile); err != nil {
		return nil, err
	}
	if err := registry.Watch(ctx, cfg.PersonasFile); err != nil {
		logger.Warn().Err(err).Str("path", cfg.PersonasFile).Msg("persona hot reload disabled")
	}
	return registry, nil
}

// NewTextGenerator picks the configured text backend.
func NewTextGenerator(ctx context.Context, cfg *infra.Config, httpClient *http.Client, logger zerolog.Logger) (prompt.Generator, error) {
	switch cfg.TextProvider {
	case infra.TextProviderOpenAI:
		gen, err := prompt.NewOpenAIGenerator(prompt.OpenAIOptions{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			HTTPClient:   httpClient,
			OnWarning: func(reason, detail string) {
				logger.Warn().Str("provider", "openai").Str("reason", reason).Str("detail", detail).Msg("text provider warning")
			},
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Str("provider", "openai").Str("model", gen.Model()).Msg("text generation configured")
		return gen, nil
	case infra.TextProviderGemini:
		gen, err := prompt.NewGeminiGenerator(ctx, prompt.GeminiOptions{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			BaseURL:    cfg.GeminiBaseURL,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Str("provider", "gemini").Str("model", cfg.GeminiModel).Msg("text generation configured")
		return gen, nil
	default:
		logger.Warn().Msg("no text model key configured, using static offline generator")
		return prompt.NewStaticGenerator(), nil
	}
}

// NewImageGenerator picks the configured image backend.
func NewImageGenerator(cfg *infra.Config, httpClient *http.Client) (image.Generator, error) {
	if cfg.ImageProvider == infra.ImageProviderFal {
		return image.NewFal(image.FalOptions{
			APIKey:     cfg.FalKey,
			BaseURL:    cfg.FalBaseURL,
			Model:      cfg.FalModel,
			HTTPClient: httpClient,
		})
	}
	return image.NewNanoBanana(image.NanoBananaOptions{
		BaseURL: cfg.StorageBaseURL + "/synthetic",
		Delay:   cfg.SyntheticDelay,
	}), nil
}

func absPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
