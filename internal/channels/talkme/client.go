// Package talkme implements the TalkMe chat-platform adapter: an inbound
// webhook server plus the outbound customBot API client.
package talkme

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

// Finish codes recognized by the TalkMe customBot API.
const (
	FinishSuccess         = "SUCCESS"
	FinishIrrelevant      = "IRRELEVANT_MESSAGE"
	FinishOperatorRequest = "OPERATOR_REQUEST"
)

// maxMessageLen is the TalkMe message size limit.
const maxMessageLen = 4000

// ClientConfig configures the outbound TalkMe API client.
type ClientConfig struct {
	BaseURL    string        `envconfig:"TALKME_API_BASE_URL" default:"https://lcab.talk-me.ru/json/v1.0"`
	Timeout    time.Duration `envconfig:"TALKME_API_TIMEOUT" default:"10s"`
	MaxRetries int           `envconfig:"TALKME_API_MAX_RETRIES" default:"3"`
	RetryDelay time.Duration `envconfig:"TALKME_API_RETRY_DELAY" default:"1s"`
}

// Client calls the TalkMe customBot API. Every call is authenticated with
// the per-dialog token delivered in the webhook, not a global credential.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	retryDelay time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: retries,
		retryDelay: cfg.RetryDelay,
	}
}

// SendMessage delivers text into the dialog.
func (c *Client) SendMessage(ctx context.Context, token, text string) error {
	payload := map[string]any{
		"content": map[string]any{
			"text": prepareMessage(text),
		},
	}
	return c.post(ctx, "customBot/send", token, payload)
}

// SimulateTyping shows the typing indicator for ttl seconds (capped at 60).
func (c *Client) SimulateTyping(ctx context.Context, token string, ttl int) error {
	if ttl > 60 {
		ttl = 60
	}
	return c.post(ctx, "customBot/simulateTyping", token, map[string]any{"ttl": ttl})
}

// Finish ends the bot's part of the dialog with a status code; TalkMe then
// routes the dialog according to the code (e.g. to a human operator).
func (c *Client) Finish(ctx context.Context, token, code string) error {
	return c.post(ctx, "customBot/finish", token, map[string]any{"code": code})
}

func (c *Client) post(ctx context.Context, path, token string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", path, err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		lastErr = c.postOnce(ctx, path, token, body)
		if lastErr == nil {
			return nil
		}
		logx.Warn().Err(lastErr).Str("path", path).Int("attempt", attempt).Msg("talkme api call failed")

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", path, c.maxRetries, lastErr)
}

func (c *Client) postOnce(ctx context.Context, path, token string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Token", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("api reported failure: %s", strings.TrimSpace(string(raw)))
	}
	return nil
}

// prepareMessage normalizes whitespace and enforces the platform size limit.
func prepareMessage(text string) string {
	if text == "" {
		return "Пустое сообщение"
	}
	text = strings.Join(strings.Fields(text), " ")
	if runes := []rune(text); len(runes) > maxMessageLen {
		text = string(runes[:maxMessageLen-50]) + "... (сообщение обрезано)"
	}
	return text
}
