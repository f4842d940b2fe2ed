// Package telegram delivers messages through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"payrecord/internal/resilience"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

var ErrMissingCredentials = errors.New("missing Telegram token or chat ID")

// APIError is returned when Telegram rejects a request.
type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	desc := e.Description
	if desc == "" {
		desc = http.StatusText(e.StatusCode)
	}
	return "Telegram API Error: " + desc
}

// Sender is the narrow interface the rest of the application depends on.
type Sender interface {
	SendMessage(ctx context.Context, token, chatID, text string) error
}

// Client calls sendMessage with retries inside a circuit breaker.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewClient creates a client. A nil httpClient gets a 10s timeout default.
func NewClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if cb == nil {
		cb = resilience.NewCircuitBreaker("telegram")
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		cfg:        cfg,
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage posts an HTML formatted message to chatID using the bot token.
func (c *Client) SendMessage(ctx context.Context, token, chatID, text string) error {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(chatID) == "" {
		return ErrMissingCredentials
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	err = resilience.Call(ctx, c.cb, c.cfg, func() error {
		return c.post(ctx, token, body)
	})
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if err != nil {
		return fmt.Errorf("telegram delivery failed: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, token string, body []byte) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result apiResponse
	// The description is best effort; some proxies answer with HTML.
	_ = json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode == http.StatusOK && result.OK {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Description: result.Description}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return apiErr
	}
	return resilience.Permanent(apiErr)
}
