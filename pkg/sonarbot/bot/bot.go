// Package bot wires the transport, the history store, and the answer
// client into the conversation loop: command dispatch, the Q&A flow with
// its typing indicator, and history export.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jholhewres/sonarbot/pkg/sonarbot/history"
	"github.com/jholhewres/sonarbot/pkg/sonarbot/render"
	"github.com/jholhewres/sonarbot/pkg/sonarbot/telegram"
)

const startMessage = `Hello! I am an AI research assistant backed by Perplexity.

Send me any question and I will search the web and answer with source citations.

<b>Available commands:</b>
/start  – show this message
/export – export the full conversation history as a .md file
/clear  – clear the conversation history and start fresh`

// Transport is the outbound surface the bot needs from the messaging
// platform.
type Transport interface {
	SendHTML(ctx context.Context, chatID int64, text string) error
	SendTyping(ctx context.Context, chatID int64) error
	SendDocument(ctx context.Context, chatID int64, filename, caption string, data []byte) error
}

// Answerer produces an answer and its citations for a question with
// bounded recent context. Implementations never fail: API errors come
// back as user-facing answer strings.
type Answerer interface {
	Ask(ctx context.Context, recent []history.Turn, question string) (string, []string)
	ContextTurns() int
}

// Bot handles incoming messages from the single allowed user.
type Bot struct {
	store     *history.Store
	answerer  Answerer
	transport Transport
	logger    *slog.Logger
}

// New creates a Bot.
func New(store *history.Store, answerer Answerer, transport Transport, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		store:     store,
		answerer:  answerer,
		transport: transport,
		logger:    logger.With("component", "bot"),
	}
}

// Run consumes updates until ctx is cancelled. Messages are handled one
// at a time; a failed handler is logged and the loop continues.
func (b *Bot) Run(ctx context.Context, updates <-chan *telegram.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-updates:
			if !ok {
				return
			}
			if err := b.Handle(ctx, msg); err != nil {
				b.logger.Error("message handling failed", "msg_id", msg.ID, "err", err)
			}
		}
	}
}

// Handle dispatches one incoming message.
func (b *Bot) Handle(ctx context.Context, msg *telegram.Message) error {
	reqID := uuid.New().String()[:8]
	logger := b.logger.With("req", reqID)
	logger.Info("message received", "user", msg.UserID, "text", preview(msg.Text))

	if strings.HasPrefix(msg.Text, "/") {
		return b.handleCommand(ctx, logger, msg)
	}
	return b.handleQuestion(ctx, logger, msg)
}

func (b *Bot) handleCommand(ctx context.Context, logger *slog.Logger, msg *telegram.Message) error {
	cmd := strings.ToLower(strings.Fields(msg.Text)[0])
	switch cmd {
	case "/start":
		return b.transport.SendHTML(ctx, msg.ChatID, startMessage)
	case "/clear":
		return b.handleClear(ctx, logger, msg)
	case "/export":
		return b.handleExport(ctx, logger, msg)
	default:
		// Mirror the transport's silence toward the unknown: log, no reply.
		logger.Warn("unknown command", "command", cmd)
		return nil
	}
}

// handleQuestion runs the Q&A flow: context read, answer call under the
// typing ticker, persistence of both turns, then the rendered, paginated
// reply.
func (b *Bot) handleQuestion(ctx context.Context, logger *slog.Logger, msg *telegram.Message) error {
	recent, err := b.store.Recent(ctx, msg.UserID, b.answerer.ContextTurns())
	if err != nil {
		return fmt.Errorf("read recent history: %w", err)
	}

	answer, citations := b.askWithTyping(ctx, msg.ChatID, recent, msg.Text)

	// Both turns are persisted even when the answer is a degraded failure
	// string, so the log stays consistent with what the user saw.
	if err := b.store.Append(ctx, msg.UserID, history.RoleUser, msg.Text, nil); err != nil {
		return fmt.Errorf("persist user turn: %w", err)
	}
	if err := b.store.Append(ctx, msg.UserID, history.RoleAssistant, answer, citations); err != nil {
		return fmt.Errorf("persist assistant turn: %w", err)
	}

	html := render.ToTelegramHTML(answer)
	for i, chunk := range render.Paginate(html, render.TelegramMessageLimit) {
		if err := b.transport.SendHTML(ctx, msg.ChatID, chunk); err != nil {
			logger.Error("failed to send reply chunk", "chunk", i, "err", err)
		}
	}
	return nil
}

// askWithTyping calls the answerer while the typing ticker runs. The
// ticker is stopped and awaited on every exit path.
func (b *Bot) askWithTyping(ctx context.Context, chatID int64, recent []history.Turn, question string) (answer string, citations []string) {
	stop := b.startTyping(ctx, chatID)
	defer stop()
	return b.answerer.Ask(ctx, recent, question)
}

func (b *Bot) handleClear(ctx context.Context, logger *slog.Logger, msg *telegram.Message) error {
	deleted, err := b.store.Clear(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	if deleted == 0 {
		return b.transport.SendHTML(ctx, msg.ChatID, "No history to clear.")
	}
	logger.Info("history cleared", "user", msg.UserID, "deleted", deleted)
	return b.transport.SendHTML(ctx, msg.ChatID,
		fmt.Sprintf("Deleted <b>%d</b> messages. Fresh conversation started!", deleted))
}

// handleExport renders the full history to a markdown document, stages it
// in a uniquely named temp file that is removed on every exit path, and
// delivers it as a document attachment.
func (b *Bot) handleExport(ctx context.Context, logger *slog.Logger, msg *telegram.Message) error {
	turns, err := b.store.All(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("read full history: %w", err)
	}
	if len(turns) == 0 {
		return b.transport.SendHTML(ctx, msg.ChatID, "No conversation history to export.")
	}

	username := exportUsername(msg)
	content := render.ExportDocument(username, turns, time.Now())

	tmp, err := os.CreateTemp("", fmt.Sprintf("history_%d_*.md", msg.UserID))
	if err != nil {
		return fmt.Errorf("create export temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write export temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export temp file: %w", err)
	}
	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return fmt.Errorf("read export temp file: %w", err)
	}

	logger.Info("exporting history", "user", msg.UserID, "turns", len(turns))
	return b.transport.SendDocument(ctx, msg.ChatID,
		fmt.Sprintf("history_%s.md", username),
		fmt.Sprintf("Conversation history — %d messages.", len(turns)),
		data,
	)
}

// exportUsername picks the best available name for export files.
func exportUsername(msg *telegram.Message) string {
	if msg.Username != "" {
		return msg.Username
	}
	if msg.DisplayName != "" {
		return msg.DisplayName
	}
	return strconv.FormatInt(msg.UserID, 10)
}

// preview truncates a message for log lines.
func preview(text string) string {
	const max = 80
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}
