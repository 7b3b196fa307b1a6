// Package telegram is a small Telegram Bot API client covering the methods
// the supervisor uses.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.telegram.org"

	// requestTimeout bounds every call except long polls.
	requestTimeout = 30 * time.Second
	// pollSlack is added to the long-poll timeout for the HTTP deadline.
	pollSlack = 10 * time.Second
	// maxResponseBytes caps a response body.
	maxResponseBytes = 8 << 20
)

// Client calls the Bot API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// New creates a client for the bot token.
func New(token string, opts ...Option) *Client {
	c := &Client{baseURL: DefaultBaseURL, token: token, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetMe returns the bot's own user. Used to verify the token at startup.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var me User
	err := c.call(ctx, "getMe", nil, &me)
	return me, err
}

// GetUpdates long-polls for updates at or after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+pollSlack)
	defer cancel()

	params := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	if err := c.do(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends text, optionally with an inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (Message, error) {
	params := map[string]any{"chat_id": chatID, "text": text}
	if markup != nil {
		params["reply_markup"] = markup
	}
	var msg Message
	err := c.call(ctx, "sendMessage", params, &msg)
	return msg, err
}

// EditMessageText replaces the text of a sent message.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	params := map[string]any{"chat_id": chatID, "message_id": messageID, "text": text}
	return c.call(ctx, "editMessageText", params, nil)
}

// EditMessageReplyMarkup replaces the keyboard of a sent message.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *InlineKeyboardMarkup) error {
	params := map[string]any{"chat_id": chatID, "message_id": messageID, "reply_markup": markup}
	return c.call(ctx, "editMessageReplyMarkup", params, nil)
}

// DeleteMessage removes a message the bot sent.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	params := map[string]any{"chat_id": chatID, "message_id": messageID}
	return c.call(ctx, "deleteMessage", params, nil)
}

// SendChatAction shows a transient status such as "typing".
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	params := map[string]any{"chat_id": chatID, "action": action}
	return c.call(ctx, "sendChatAction", params, nil)
}

// AnswerCallbackQuery stops the button's loading spinner.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	params := map[string]any{"callback_query_id": callbackID}
	return c.call(ctx, "answerCallbackQuery", params, nil)
}

// SendVoice uploads audio as a voice message.
func (c *Client) SendVoice(ctx context.Context, chatID int64, audio []byte, filename, caption string) (Message, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return Message{}, fmt.Errorf("telegram: encode form: %w", err)
	}
	if caption != "" {
		if err := form.WriteField("caption", caption); err != nil {
			return Message{}, fmt.Errorf("telegram: encode form: %w", err)
		}
	}
	part, err := form.CreateFormFile("voice", filename)
	if err != nil {
		return Message{}, fmt.Errorf("telegram: encode form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return Message{}, fmt.Errorf("telegram: encode form: %w", err)
	}
	if err := form.Close(); err != nil {
		return Message{}, fmt.Errorf("telegram: encode form: %w", err)
	}

	var msg Message
	err = c.doRaw(ctx, "sendVoice", form.FormDataContentType(), &body, &msg)
	return msg, err
}

// call performs a JSON method call bounded by requestTimeout.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return c.do(ctx, method, params, result)
}

func (c *Client) do(ctx context.Context, method string, params any, result any) error {
	var body io.Reader
	contentType := ""
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("telegram: encode %s request: %w", method, err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}
	return c.doRaw(ctx, method, contentType, body, result)
}

func (c *Client) doRaw(ctx context.Context, method, contentType string, body io.Reader, result any) error {
	requestURL := c.baseURL + "/bot" + c.token + "/" + method
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, body)
	if err != nil {
		return fmt.Errorf("telegram: create %s request: %w", method, err)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		// The URL carries the token; never surface it.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("telegram: read %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("telegram: unexpected %d response from %s: %s", response.StatusCode, method, truncate(string(raw), 200))
	}
	if !envelope.OK {
		apiErr := &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
		if apiErr.Code == 0 {
			apiErr.Code = response.StatusCode
		}
		if envelope.Parameters != nil {
			apiErr.RetryAfter = envelope.Parameters.RetryAfter
		}
		return apiErr
	}
	if result == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("telegram: decode %s result: %w", method, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
