// Package cmd contains the tutor CLI commands.
//
// Design: following the pattern used by kubectl, hugo, and other standard Go
// CLI tools, all application logic is contained in the cmd package, leaving
// main.go as a minimal entry point.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/koopa0/tutor/internal/config"
	"github.com/koopa0/tutor/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "tutor",
	Short: "Tutor - course materials assistant",
	Long: `Tutor answers questions about your course materials.

Ingest a folder of course documents, then ask questions one-shot with
"tutor ask" or start the HTTP API with "tutor serve".`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	// .env is optional; environment variables win when both are present.
	_ = godotenv.Load()
	return rootCmd.Execute()
}

// initLogger builds the process logger. The DEBUG environment variable
// switches on debug-level output.
func initLogger() log.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)
	return logger
}

// loadConfig loads and validates the configuration, failing fast with a
// user-friendly hint when the API key is missing.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		if os.Getenv("GEMINI_API_KEY") == "" {
			fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprintln(os.Stderr, "To set your API key:")
			fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprintln(os.Stderr, "Get your API key at: https://ai.google.dev/")
		}
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
