package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koopa0/tutor/internal/app"
)

var askSessionID string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question about the course materials",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSessionID, "session", "", "continue an existing session id")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	logger := initLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	sessionID := askSessionID
	if sessionID == "" {
		sessionID = a.Sessions.Create()
	}

	question := strings.Join(args, " ")
	resp, err := a.Orchestrator.Answer(ctx, question, sessionID)
	if err != nil {
		return fmt.Errorf("answering: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for _, source := range resp.Sources {
			if source.Link != "" {
				fmt.Fprintf(out, "  %s (%s)\n", source.Text, source.Link)
			} else {
				fmt.Fprintf(out, "  %s\n", source.Text)
			}
		}
	}
	fmt.Fprintf(out, "\nSession: %s\n", sessionID)

	return nil
}
