package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"creativeflow/internal/infra"
	"creativeflow/internal/infra/credentials"
)

var envKeys = map[string]string{
	credentials.ProviderOpenAI: "OPENAI_API_KEY",
	credentials.ProviderGemini: "GEMINI_API_KEY",
	credentials.ProviderFal:    "FAL_KEY",
}

func main() {
	var (
		keyFlag      string
		providerFlag string
		deleteFlag   bool
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (falls back to the provider's environment variable)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderGemini, "Provider to configure: "+strings.Join(credentials.Supported, ", "))
	flag.BoolVar(&deleteFlag, "delete", false, "Remove the stored key instead of setting it")
	flag.Parse()

	_ = godotenv.Load()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	envKey, ok := envKeys[provider]
	if !ok {
		exitWithError(fmt.Errorf("unsupported provider %q", providerFlag))
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envKey))
	}
	if key == "" && !deleteFlag {
		exitWithError(fmt.Errorf("%s API key is required via -key or %s", strings.ToUpper(provider), envKey))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(fmt.Errorf("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to create pool: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "providerkey").With().Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
	if err := store.EnsureSchema(ctx); err != nil {
		exitWithError(err)
	}

	if deleteFlag {
		if err := store.Delete(ctx, provider); err != nil {
			exitWithError(fmt.Errorf("failed to delete %s api key: %w", provider, err))
		}
		fmt.Printf("%s API key removed\n", strings.ToUpper(provider))
		return
	}
	if err := store.Set(ctx, provider, key, map[string]any{"set_by": "providerkey", "set_at": time.Now().UTC()}); err != nil {
		exitWithError(fmt.Errorf("failed to persist %s api key: %w", provider, err))
	}
	fmt.Printf("%s API key stored successfully\n", strings.ToUpper(provider))
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
