package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client posts operational summaries to a fixed Telegram chat. Credentials
// (bot token, chat id) come from the parameter store on first use. Sends
// are throttled client-side; the ops channel is best-effort and must not
// burst past Telegram's limits during batch approvals.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string
	limiter     *rate.Limiter

	credOnce sync.Once
	botToken string
	chatID   string
	credErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new Client backed by the given parameter getter.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("telegram: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("telegram: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     "https://api.telegram.org",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
		limiter:     rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveCredentials(ctx context.Context) (token, chatID string, err error) {
	c.credOnce.Do(func() {
		c.botToken, c.credErr = c.getter.GetParameter(ctx, c.paramPrefix+"/telegram/bot-token")
		if c.credErr != nil {
			return
		}
		c.chatID, c.credErr = c.getter.GetParameter(ctx, c.paramPrefix+"/telegram/chat-id")
		if c.credErr == nil && (strings.TrimSpace(c.botToken) == "" || strings.TrimSpace(c.chatID) == "") {
			c.credErr = errors.New("telegram: bot token or chat id is empty")
		}
	})
	return c.botToken, c.chatID, c.credErr
}

// Send posts one plain-text message to the ops chat.
func (c *Client) Send(ctx context.Context, text string) error {
	token, chatID, err := c.resolveCredentials(ctx)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: rate limit wait: %w", err)
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("telegram: marshal request: %w", err)
	}

	url := strings.TrimRight(c.baseURL, "/") + "/bot" + token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("telegram: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("telegram: unexpected status %d: %s", res.StatusCode, string(raw))
	}

	var payload sendMessageResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("telegram: decode response: %w", err)
	}
	if !payload.OK {
		return fmt.Errorf("telegram: send rejected: %s", payload.Description)
	}
	return nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}
