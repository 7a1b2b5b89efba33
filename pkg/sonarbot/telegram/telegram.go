// Package telegram implements the bot's transport against the Telegram
// Bot API directly via HTTP — no external dependencies. It long-polls
// getUpdates for incoming text, and exposes the three send operations the
// bot needs: HTML messages, typing indicators, and document uploads.
//
// The authorization filter lives here: exactly one user id is allowed,
// and updates from anyone else are logged and dropped without a reply.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Config holds the transport configuration.
type Config struct {
	// Token is the Telegram Bot API token (from @BotFather). Required.
	Token string `yaml:"token"`

	// AllowedUserID is the single user the bot answers to. Required.
	AllowedUserID int64 `yaml:"allowed_user_id"`
}

// Message is an incoming text message from the allowed user.
type Message struct {
	ID          int64
	ChatID      int64
	UserID      int64
	Username    string
	DisplayName string
	Text        string
	Timestamp   time.Time
}

// Client is the Telegram transport.
type Client struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client

	// baseURL is https://api.telegram.org/bot<token>.
	baseURL string

	// updates carries incoming messages to the bot loop.
	updates chan *Message

	// offset is the last processed update ID + 1.
	offset int64

	connected atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Telegram client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		logger:  logger.With("component", "telegram"),
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: "https://api.telegram.org/bot" + cfg.Token,
		updates: make(chan *Message, 64),
	}
}

// Connect verifies the token via getMe and starts the polling loop.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token is required")
	}
	if c.connected.Load() {
		return nil
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	me, err := c.getMe()
	if err != nil {
		return fmt.Errorf("telegram: failed to verify token: %w", err)
	}
	c.logger.Info("connected", "bot", me.Username, "id", me.ID,
		"allowed_user", c.cfg.AllowedUserID)
	c.connected.Store(true)

	go c.pollLoop()
	return nil
}

// Disconnect stops the polling loop.
func (c *Client) Disconnect() {
	if c.cancel != nil {
		c.cancel()
	}
	c.connected.Store(false)
	c.logger.Info("disconnected")
}

// Updates returns the channel of incoming messages from the allowed user.
func (c *Client) Updates() <-chan *Message {
	return c.updates
}

// SendHTML sends an HTML-formatted message to a chat.
func (c *Client) SendHTML(ctx context.Context, chatID int64, text string) error {
	_, err := c.apiCall(ctx, "sendMessage", map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	return err
}

// SendTyping sends a "typing..." chat action.
func (c *Client) SendTyping(ctx context.Context, chatID int64) error {
	_, err := c.apiCall(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  "typing",
	})
	return err
}

// SendDocument uploads a document with a caption via multipart form data.
func (c *Client) SendDocument(ctx context.Context, chatID int64, filename, caption string, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	_ = w.WriteField("chat_id", fmt.Sprintf("%d", chatID))
	if caption != "" {
		_ = w.WriteField("caption", caption)
	}
	part, err := w.CreateFormFile("document", filename)
	if err != nil {
		return fmt.Errorf("telegram: creating form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("telegram: writing document data: %w", err)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendDocument", &buf)
	if err != nil {
		return fmt.Errorf("telegram: creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: upload failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("telegram: decoding upload response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram: sendDocument: %s", result.Description)
	}
	return nil
}

// pollLoop runs the getUpdates long-polling loop with exponential backoff
// on errors.
func (c *Client) pollLoop() {
	c.logger.Info("polling started")
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("polling stopped")
			return
		default:
		}

		updates, err := c.getUpdates(c.offset, 100, 30)
		if err != nil {
			c.logger.Warn("getUpdates error", "err", err, "backoff", backoff)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, u := range updates {
			if u.UpdateID >= c.offset {
				c.offset = u.UpdateID + 1
			}
			c.processUpdate(u)
		}
	}
}

// processUpdate filters an update down to a text message from the allowed
// user and forwards it to the bot loop.
func (c *Client) processUpdate(u tgUpdate) {
	msg := u.Message
	if msg == nil || msg.From == nil {
		return
	}

	if msg.From.ID != c.cfg.AllowedUserID {
		// Unauthorized senders are observed and dropped, never answered.
		c.logger.Warn("rejected message from unauthorized user",
			"user", msg.From.ID, "username", msg.From.Username)
		return
	}
	if msg.Text == "" {
		return
	}

	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if name == "" {
		name = msg.From.Username
	}

	incoming := &Message{
		ID:          int64(msg.MessageID),
		ChatID:      msg.Chat.ID,
		UserID:      msg.From.ID,
		Username:    msg.From.Username,
		DisplayName: name,
		Text:        msg.Text,
		Timestamp:   time.Unix(int64(msg.Date), 0),
	}

	select {
	case c.updates <- incoming:
	default:
		c.logger.Warn("update buffer full, dropping message", "msg_id", incoming.ID)
	}
}

// ---------- Bot API types ----------

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	MessageID int     `json:"message_id"`
	From      *tgUser `json:"from"`
	Chat      tgChat  `json:"chat"`
	Date      int     `json:"date"`
	Text      string  `json:"text"`
}

type tgUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgBotUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// ---------- API helpers ----------

// apiCall makes a POST request to the Bot API.
func (c *Client) apiCall(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: creating request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("telegram: decoding %s response: %w", method, err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram: %s: %s", method, result.Description)
	}
	return result.Result, nil
}

func (c *Client) getMe() (*tgBotUser, error) {
	data, err := c.apiCall(c.ctx, "getMe", nil)
	if err != nil {
		return nil, err
	}
	var user tgBotUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("telegram: parsing getMe: %w", err)
	}
	return &user, nil
}

func (c *Client) getUpdates(offset int64, limit, timeoutSecs int) ([]tgUpdate, error) {
	data, err := c.apiCall(c.ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"limit":           limit,
		"timeout":         timeoutSecs,
		"allowed_updates": []string{"message"},
	})
	if err != nil {
		return nil, err
	}
	var updates []tgUpdate
	if err := json.Unmarshal(data, &updates); err != nil {
		return nil, fmt.Errorf("telegram: parsing updates: %w", err)
	}
	return updates, nil
}
