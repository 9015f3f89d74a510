package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koopa0/tutor/internal/app"
)

var clearExisting bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Load a folder of course documents into the index",
	Long: `Ingest parses every .txt and .md course document directly under the
given folder and indexes its chunks. Courses whose title is already indexed
are skipped; use --clear to rebuild the index from scratch.

Without a path argument the configured docs_path is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&clearExisting, "clear", false, "wipe the index before ingesting")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	logger := initLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := cfg.DocsPath
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no folder given and docs_path is not configured")
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

	summary, err := a.Ingestor.Ingest(ctx, path, clearExisting)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	for _, file := range summary.Files {
		switch {
		case file.Err != nil:
			fmt.Fprintf(out, "  %-40s ERROR: %v\n", file.Name, file.Err)
		case file.Skipped:
			fmt.Fprintf(out, "  %-40s skipped (already indexed)\n", file.Name)
		default:
			fmt.Fprintf(out, "  %-40s %s (%d chunks)\n", file.Name, file.CourseTitle, file.Chunks)
		}
	}
	fmt.Fprintf(out, "Ingested %d courses, %d chunks\n", summary.CoursesAdded, summary.ChunksAdded)

	return nil
}
