// Package telegram delivers announcements through the Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pwieczorek/newsrelay/internal/logging"
	"github.com/pwieczorek/newsrelay/internal/notify"
)

const defaultBaseURL = "https://api.telegram.org"

// Client talks to the Bot API over plain HTTP form posts.
type Client struct {
	httpc   *http.Client
	baseURL string
	token   string
	chatID  string
}

// New builds a Client, failing fast on missing credentials.
func New(token, chatID string) (*Client, error) {
	if token == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	if chatID == "" {
		return nil, errors.New("telegram: chat id is required")
	}
	return &Client{
		httpc:   &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultBaseURL,
		token:   token,
		chatID:  chatID,
	}, nil
}

// Deliver implements notify.Notifier. Messages with a photo go through
// sendPhoto with the text as caption, the rest through sendMessage.
func (c *Client) Deliver(ctx context.Context, msg notify.Message) error {
	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("parse_mode", "Markdown")

	method := "sendMessage"
	if msg.PhotoURL != "" {
		method = "sendPhoto"
		form.Set("photo", msg.PhotoURL)
		form.Set("caption", msg.Text)
	} else {
		form.Set("text", msg.Text)
		form.Set("disable_web_page_preview", "true")
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}

	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		logging.L.Warn("Telegram returned a non-JSON body",
			zap.Int("status", resp.StatusCode))
	}
	if resp.StatusCode == http.StatusOK && api.OK {
		return nil
	}
	return classify(resp.StatusCode, api)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func classify(status int, api apiResponse) error {
	code := status
	if api.ErrorCode != 0 {
		code = api.ErrorCode
	}
	e := &notify.DeliveryError{
		StatusCode: code,
		Detail:     api.Description,
	}
	if e.Detail == "" {
		e.Detail = "status " + strconv.Itoa(status)
	}
	switch {
	case code == http.StatusTooManyRequests:
		e.Retryable = true
		e.RetryAfter = time.Duration(api.Parameters.RetryAfter) * time.Second
	case code >= 500:
		e.Retryable = true
	}
	return e
}
