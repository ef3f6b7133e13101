package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"creativeflow/internal/client"
)

var (
	serverURL   string
	localeFlag  string
	jsonOutput  bool
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "creativectl",
	Short: "Drive the creative pipeline from a terminal",
	Long: `creativectl submits ad briefs to the creative pipeline API, reviews the
enhanced brief, and exports the finished prompts and images.

Examples:
  creativectl execute --brief "Cold brew for night-shift nurses" --wait
  creativectl approve 3f0c...
  creativectl reject 3f0c... --feedback "less corporate, more warmth"
  creativectl answer 3f0c... --text "Target age 25-40, Jakarta"
  creativectl export 3f0c... -o campaign.zip`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		level := zerolog.WarnLevel
		if verboseFlag {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.TimeOnly}).
			Level(level).With().Timestamp().Logger()
	},
}

func init() {
	_ = godotenv.Load()
	defaultURL := os.Getenv("CREATIVEFLOW_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "Pipeline API base URL (env CREATIVEFLOW_URL)")
	rootCmd.PersistentFlags().StringVar(&localeFlag, "locale", "", "Locale for API messages, e.g. en or id")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON responses")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log requests to stderr")

	rootCmd.AddCommand(executeCmd, resumeCmd, approveCmd, rejectCmd, answerCmd, statusCmd, watchCmd, personasCmd, exportCmd)
}

func newClient() (*client.Client, error) {
	c, err := client.New(client.Options{BaseURL: serverURL, Locale: localeFlag})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", serverURL, err)
	}
	log.Debug().Str("server", serverURL).Str("locale", localeFlag).Msg("client ready")
	return c, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
