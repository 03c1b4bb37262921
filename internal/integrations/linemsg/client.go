package linemsg

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

	"repair-agent/internal/domain"
)

// textMessage is the wire shape of a LINE text message.
type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("linemsg: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused LINE Messaging API client covering reply and push.
// The channel access token and channel secret are fetched from the
// parameter store on first use and reused for the process lifetime.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	tokenOnce sync.Once
	token     string
	tokenErr  error

	secretOnce sync.Once
	secret     string
	secretErr  error
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

// NewClient creates a new Client backed by the given parameter getter for
// credential retrieval.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("linemsg: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("linemsg: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     "https://api.line.me",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenOnce.Do(func() {
		c.token, c.tokenErr = c.getter.GetParameter(ctx, c.paramPrefix+"/line/channel-token")
		if c.tokenErr == nil && strings.TrimSpace(c.token) == "" {
			c.tokenErr = errors.New("linemsg: channel token is empty")
		}
	})
	return c.token, c.tokenErr
}

// ChannelSecret returns the webhook signing secret, fetched once from the
// parameter store.
func (c *Client) ChannelSecret(ctx context.Context) (string, error) {
	c.secretOnce.Do(func() {
		c.secret, c.secretErr = c.getter.GetParameter(ctx, c.paramPrefix+"/line/channel-secret")
		if c.secretErr == nil && strings.TrimSpace(c.secret) == "" {
			c.secretErr = errors.New("linemsg: channel secret is empty")
		}
	})
	return c.secret, c.secretErr
}

// Reply sends messages bound to the triggering event's reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, msgs []domain.OutboundMessage) error {
	if strings.TrimSpace(replyToken) == "" {
		return errors.New("linemsg: reply token must not be empty")
	}
	return c.send(ctx, "/v2/bot/message/reply", replyRequest{
		ReplyToken: replyToken,
		Messages:   toWire(msgs),
	})
}

// Push sends unsolicited messages to a user.
func (c *Client) Push(ctx context.Context, userID string, msgs []domain.OutboundMessage) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("linemsg: user id must not be empty")
	}
	return c.send(ctx, "/v2/bot/message/push", pushRequest{
		To:       userID,
		Messages: toWire(msgs),
	})
}

func (c *Client) send(ctx context.Context, path string, payload any) error {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("linemsg: marshal request: %w", err)
	}

	url := strings.TrimRight(c.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("linemsg: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("linemsg: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func toWire(msgs []domain.OutboundMessage) []textMessage {
	out := make([]textMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, textMessage{Type: "text", Text: m.Text})
	}
	return out
}
