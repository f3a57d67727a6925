package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailmind/mailmind/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "mailmind",
	Short: "Mailmind API server",
	Long: `mailmind serves the webmail assistant API: Google sign-in, the daily
prompt ledger, streamed chat completions and the Stripe billing webhook.

Running without a subcommand starts the server.`,
	SilenceUsage: true,
}

// Execute runs the root command, defaulting to serve.
func Execute() {
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
}

// loadConfig reads and validates configuration, then installs the logger
// it describes.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
