// Package perplexity implements the client for the Perplexity
// chat-completions API. API failures never surface as errors: they are
// mapped to user-facing answer strings so the conversation log stays
// coherent with what the user actually saw.
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jholhewres/sonarbot/pkg/sonarbot/history"
)

// DefaultBaseURL is the Perplexity chat-completions endpoint.
const DefaultBaseURL = "https://api.perplexity.ai/chat/completions"

// DefaultModel is Perplexity's search-grounded model.
const DefaultModel = "sonar"

// DefaultSystemPrompt is the fixed instruction sent ahead of the context.
const DefaultSystemPrompt = "You are a research assistant. Answer concisely, " +
	"in the user's language, and cite your sources."

// requestTimeout bounds the whole API call.
const requestTimeout = 30 * time.Second

// Fallback answers, one per failure class. The HTTP status and the error
// detail are embedded where they carry diagnostic value; everything else
// is a fixed string.
const (
	msgTimeout     = "The request timed out. Please try again in a moment."
	msgBadAuth     = "Authentication failed: the Perplexity API key is not valid."
	msgRateLimited = "Rate limit exceeded. Please try again in a few minutes."
	msgBadFormat   = "The API response was not in the expected format."
)

// Config holds the answer client settings.
type Config struct {
	// APIKey is the Perplexity bearer credential. Required.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the API endpoint (useful for tests).
	BaseURL string `yaml:"base_url"`

	// Model selects the Perplexity model.
	Model string `yaml:"model"`

	// SystemPrompt overrides the fixed system instruction.
	SystemPrompt string `yaml:"system_prompt"`

	// ContextTurns bounds how many recent turns are sent as context.
	ContextTurns int `yaml:"context_turns"`
}

// DefaultConfig returns a Config with the reference defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		Model:        DefaultModel,
		SystemPrompt: DefaultSystemPrompt,
		ContextTurns: 4,
	}
}

// Client talks to the Perplexity API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client, filling unset config fields with defaults.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = 4
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With("component", "perplexity"),
	}
}

// ContextTurns returns how many recent turns the client wants as context.
func (c *Client) ContextTurns() int {
	return c.cfg.ContextTurns
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// Ask sends the system instruction, the sanitized recent context, and the
// new question, and returns the answer with its citation URLs. Every
// failure degrades to a user-facing answer string with empty citations;
// Ask never fails the caller. No retries are performed.
func (c *Client) Ask(ctx context.Context, recent []history.Turn, question string) (string, []string) {
	messages := make([]apiMessage, 0, len(recent)+2)
	messages = append(messages, apiMessage{Role: "system", Content: c.cfg.SystemPrompt})
	for _, t := range history.Sanitize(recent) {
		messages = append(messages, apiMessage{Role: string(t.Role), Content: t.Content})
	}
	messages = append(messages, apiMessage{Role: "user", Content: question})

	body, err := json.Marshal(apiRequest{Model: c.cfg.Model, Messages: messages})
	if err != nil {
		return fmt.Sprintf("Something went wrong while calling the API: %v", err), nil
	}

	c.logger.Info("sending request", "model", c.cfg.Model, "messages", len(messages))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Sprintf("Something went wrong while calling the API: %v", err), nil
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.logger.Error("request timed out")
			return msgTimeout, nil
		}
		c.logger.Error("request failed", "err", err)
		return fmt.Sprintf("Something went wrong while calling the API: %v", err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("api returned error status", "status", resp.StatusCode)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return msgBadAuth, nil
		case http.StatusTooManyRequests:
			return msgRateLimited, nil
		default:
			return fmt.Sprintf("The Perplexity API returned HTTP %d.", resp.StatusCode), nil
		}
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Error("failed to decode response", "err", err)
		return msgBadFormat, nil
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		c.logger.Error("response missing expected fields")
		return msgBadFormat, nil
	}

	c.logger.Info("answer received", "citations", len(parsed.Citations))
	return parsed.Choices[0].Message.Content, parsed.Citations
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
