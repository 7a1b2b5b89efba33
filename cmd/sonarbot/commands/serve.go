package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/sonarbot/pkg/sonarbot/bot"
	"github.com/jholhewres/sonarbot/pkg/sonarbot/config"
	"github.com/jholhewres/sonarbot/pkg/sonarbot/history"
	"github.com/jholhewres/sonarbot/pkg/sonarbot/perplexity"
	"github.com/jholhewres/sonarbot/pkg/sonarbot/telegram"
)

// newServeCmd creates the `sonarbot serve` command that starts the bot.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Telegram bot",
		Long: `Start Sonar Bot as a long-running service: connect to Telegram,
long-poll for messages from the allowed user, and answer through Perplexity.

Examples:
  sonarbot serve
  sonarbot serve --config ./config.yaml --verbose`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	config.ResolveAPIKey(cfg, logger)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := history.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer store.Close()

	answerer := perplexity.New(cfg.Perplexity, logger)
	transport := telegram.New(cfg.Telegram, logger)
	b := bot.New(store, answerer, transport, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := transport.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to Telegram: %w", err)
	}

	logger.Info("Sonar Bot running. Press Ctrl+C to stop.",
		"allowed_user", cfg.Telegram.AllowedUserID,
		"model", cfg.Perplexity.Model,
	)

	b.Run(ctx, transport.Updates())

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		transport.Disconnect()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}
	return nil
}
