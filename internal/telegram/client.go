// Package telegram connects the game to the Telegram Bot API: long polling
// for updates, sending messages with keyboards and answering callback
// queries.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultHTTPTimeout = 90 * time.Second

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Blocked reports that the user stopped the bot or never started it.
func (e *APIError) Blocked() bool {
	return e.Code == http.StatusForbidden
}

// Client wraps tgbotapi.BotAPI. tgbotapi requests carry no context, so every
// call runs in its own goroutine bounded by the HTTP client timeout and the
// caller stops waiting once ctx is done.
type Client struct {
	api   *tgbotapi.BotAPI
	token string
}

// NewClient checks the token with getMe. The HTTP timeout must exceed the
// long-poll timeout.
func NewClient(baseURL, token string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/bot%s/%s"
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, wrapError("getMe", err, token)
	}
	return &Client{api: api, token: token}, nil
}

// Username is the bot's own username as reported by getMe.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

func (c *Client) SendMessage(ctx context.Context, msg tgbotapi.MessageConfig) error {
	return c.do(ctx, "sendMessage", func() error {
		_, err := c.api.Request(msg)
		return err
	})
}

// GetUpdates long-polls for up to timeout seconds.
func (c *Client) GetUpdates(ctx context.Context, offset, timeout int) ([]tgbotapi.Update, error) {
	var updates []tgbotapi.Update
	err := c.do(ctx, "getUpdates", func() error {
		var err error
		updates, err = c.api.GetUpdates(tgbotapi.UpdateConfig{
			Offset:         offset,
			Timeout:        timeout,
			AllowedUpdates: []string{"message", "callback_query"},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, id string) error {
	return c.do(ctx, "answerCallbackQuery", func() error {
		_, err := c.api.Request(tgbotapi.NewCallback(id, ""))
		return err
	})
}

func (c *Client) do(ctx context.Context, method string, call func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- call()
	}()
	select {
	case err := <-done:
		if err != nil {
			return wrapError(method, err, c.token)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram %s: %w", method, ctx.Err())
	}
}

// wrapError turns tgbotapi errors into APIError and keeps the bot token out
// of transport errors, whose message carries the request URL.
func wrapError(method string, err error, token string) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return &APIError{
			Method:      method,
			Code:        tgErr.Code,
			Description: tgErr.Message,
			RetryAfter:  time.Duration(tgErr.RetryAfter) * time.Second,
		}
	}
	if token != "" && strings.Contains(err.Error(), token) {
		return fmt.Errorf("telegram %s: %s", method, strings.ReplaceAll(err.Error(), token, "<token>"))
	}
	return fmt.Errorf("telegram %s: %w", method, err)
}
