package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/sonarbot/pkg/sonarbot/history"
	"github.com/jholhewres/sonarbot/pkg/sonarbot/render"
)

// newExportCmd creates the `sonarbot export` command.
func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the conversation history as Markdown",
		Long: `Write the full conversation history as a Markdown document,
to stdout or to a file.

Examples:
  sonarbot export
  sonarbot export --out history.md`,
		RunE: runExport,
	}

	cmd.Flags().StringP("out", "o", "", "write to a file instead of stdout")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	store, err := history.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	turns, err := store.All(ctx, cfg.Telegram.AllowedUserID)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if len(turns) == 0 {
		fmt.Println("No conversation history to export.")
		return nil
	}

	doc := render.ExportDocument("terminal", turns, time.Now())

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		fmt.Print(doc)
		return nil
	}
	if err := os.WriteFile(out, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	fmt.Printf("Exported %d messages to %s\n", len(turns), out)
	return nil
}
