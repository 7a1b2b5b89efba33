package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jholhewres/sonarbot/pkg/sonarbot/config"
	"github.com/jholhewres/sonarbot/pkg/sonarbot/history"
	"github.com/jholhewres/sonarbot/pkg/sonarbot/perplexity"
	"github.com/jholhewres/sonarbot/pkg/sonarbot/render"
)

// newChatCmd creates the `sonarbot chat` command for terminal conversations.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [question]",
		Short: "Ask from the terminal",
		Long: `Talk to the assistant from the terminal, sharing the same history
as the Telegram conversation. With an argument it answers once and exits;
without arguments it starts an interactive session.

Examples:
  sonarbot chat "what changed in go 1.24?"
  sonarbot chat`,
		Args: cobra.ArbitraryArgs,
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
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
	ctx := cmd.Context()
	userID := cfg.Telegram.AllowedUserID

	if len(args) > 0 {
		return askOnce(ctx, store, answerer, userID, strings.Join(args, " "))
	}
	return runREPL(ctx, store, answerer, userID)
}

// askOnce answers a single question and exits.
func askOnce(ctx context.Context, store *history.Store, answerer *perplexity.Client, userID int64, question string) error {
	recent, err := store.Recent(ctx, userID, answerer.ContextTurns())
	if err != nil {
		return fmt.Errorf("loading context: %w", err)
	}

	answer, citations := answerer.Ask(ctx, recent, question)

	if err := store.Append(ctx, userID, history.RoleUser, question, nil); err != nil {
		return fmt.Errorf("saving question: %w", err)
	}
	if err := store.Append(ctx, userID, history.RoleAssistant, answer, citations); err != nil {
		return fmt.Errorf("saving answer: %w", err)
	}

	printAnswer(answer, citations)
	return nil
}

// runREPL starts the interactive session.
func runREPL(ctx context.Context, store *history.Store, answerer *perplexity.Client, userID int64) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     historyFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "bye",
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("Sonar Bot interactive session. Type /quit to exit, /clear to reset history.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return nil
		case "/clear":
			deleted, err := store.Clear(ctx, userID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "clear failed: %v\n", err)
				continue
			}
			fmt.Printf("Deleted %d messages.\n", deleted)
			continue
		case "/export":
			if err := exportToFile(ctx, store, userID); err != nil {
				fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			}
			continue
		}

		if err := askOnce(ctx, store, answerer, userID, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// exportToFile writes the history as markdown into the working directory.
func exportToFile(ctx context.Context, store *history.Store, userID int64) error {
	turns, err := store.All(ctx, userID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Println("No conversation history to export.")
		return nil
	}

	doc := render.ExportDocument("terminal", turns, time.Now())
	name := fmt.Sprintf("history_%d.md", userID)
	if err := os.WriteFile(name, []byte(doc), 0o644); err != nil {
		return err
	}
	fmt.Printf("Exported %d messages to %s\n", len(turns), name)
	return nil
}

func printAnswer(answer string, citations []string) {
	fmt.Println()
	fmt.Println(answer)
	if len(citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for i, c := range citations {
			fmt.Printf("  [%d] %s\n", i+1, c)
		}
	}
	fmt.Println()
}

// historyFilePath puts the readline history next to the user cache.
func historyFilePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return dir + "/sonarbot/chat_history"
}
