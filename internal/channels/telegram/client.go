// Package telegram runs the long-polling Telegram adapter.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config configures the Telegram Bot API client.
type Config struct {
	Token       string        `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	APIBaseURL  string        `envconfig:"TELEGRAM_API_BASE_URL" default:"https://api.telegram.org"`
	PollTimeout time.Duration `envconfig:"TELEGRAM_POLL_TIMEOUT" default:"30s"`
}

// Update is one long-polling update. Only message updates are consumed.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is the subset of the Bot API message object the bot needs.
type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from"`
	Voice     *Voice `json:"voice"`
}

// Voice marks a voice-note message; the bot does not transcribe audio.
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Client is a minimal Bot API client covering what the consultation bot
// needs: getUpdates, sendMessage and the typing action.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	pollTimeout time.Duration
}

func NewClient(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{
			// Long-poll requests hold the connection open for PollTimeout;
			// leave headroom on top of it.
			Timeout: cfg.PollTimeout + 10*time.Second,
		},
		baseURL:     fmt.Sprintf("%s/bot%s", cfg.APIBaseURL, cfg.Token),
		pollTimeout: cfg.PollTimeout,
	}
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(int(c.pollTimeout.Seconds())))
	params.Set("allowed_updates", `["message"]`)

	raw, err := c.call(ctx, "getUpdates", params)
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

// SendMessage sends text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)

	_, err := c.call(ctx, "sendMessage", params)
	return err
}

// SendTyping shows the "typing..." indicator while a turn is in flight.
func (c *Client) SendTyping(ctx context.Context, chatID int64) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("action", "typing")

	_, err := c.call(ctx, "sendChatAction", params)
	return err
}

func (c *Client) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	endpoint := c.baseURL + "/" + method

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		bytes.NewBufferString(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}

	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if !api.OK {
		return nil, fmt.Errorf("%s failed: %s", method, api.Description)
	}
	return api.Result, nil
}
