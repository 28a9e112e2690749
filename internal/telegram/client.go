// Package telegram talks to the Telegram Bot API: it posts trip messages to
// the channel, reports failures to the maintainer and answers bot commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// APIError is a failure reported by the Bot API itself.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: api error %d: %s", e.Code, e.Description)
}

// Chat identifies the chat an update came from.
type Chat struct {
	ID int64 `json:"id"`
}

// Message is the subset of a Telegram message the bot reads.
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// Update is one entry returned by getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Client is a minimal Bot API client.
type Client struct {
	http    *resty.Client
	token   string
	timeout time.Duration
}

// NewClient creates a client for the bot identified by token. timeout bounds
// each request; long polls get it on top of their own wait.
func NewClient(apiURL, token string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(apiURL, "/")+"/bot"+token).
			SetHeader("Content-Type", "application/json"),
		token:   token,
		timeout: timeout,
	}
}

// SendMessage posts text to chatID, which is either a numeric id or an
// @channel username.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	ctx, cancel := c.withTimeout(ctx, 0)
	defer cancel()

	var out apiResponse[Message]
	_, err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, &out)
	return err
}

// GetUpdates long-polls for updates with id >= offset, waiting up to wait.
func (c *Client) GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error) {
	ctx, cancel := c.withTimeout(ctx, wait)
	defer cancel()

	var out apiResponse[[]Update]
	if _, err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(wait / time.Second),
		"allowed_updates": []string{"message"},
	}, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

type envelope interface {
	status() (bool, int, string)
}

func (r *apiResponse[T]) status() (bool, int, string) { return r.OK, r.ErrorCode, r.Description }

func (c *Client) call(ctx context.Context, method string, body any, out envelope) (*resty.Response, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(out).
		Post("/" + method)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s: %w", method, c.redact(err))
	}
	ok, code, desc := out.status()
	if res.IsError() || !ok {
		if code == 0 {
			code = res.StatusCode()
		}
		if desc == "" {
			desc = res.Status()
		}
		return res, fmt.Errorf("telegram: %s: %w", method, &APIError{Code: code, Description: desc})
	}
	return res, nil
}

// redact strips the bot token from transport errors, which quote the
// request URL.
func (c *Client) redact(err error) error {
	if c.token == "" {
		return err
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		uerr.URL = strings.ReplaceAll(uerr.URL, c.token, "<redacted>")
	}
	if strings.Contains(err.Error(), c.token) {
		return errors.New(strings.ReplaceAll(err.Error(), c.token, "<redacted>"))
	}
	return err
}

func (c *Client) withTimeout(ctx context.Context, extra time.Duration) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout+extra)
}
