// Package whatsapp is the client for the WhatsApp-class messaging provider:
// message sends, bot and template discovery, and contact resolution with
// the conversation-window cache.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"reminder-service/internal/logging"
	"reminder-service/internal/ratelimit"
	"reminder-service/internal/retry"
)

// Bot is a provider-side sending identity.
type Bot struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Default bool   `json:"default"`
}

// Template is a pre-approved message template.
type Template struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Category string `json:"category"`
	Status   string `json:"status"` // APPROVED, REJECTED, PENDING
}

// Contact is a provider-side contact record.
type Contact struct {
	ID               string `json:"id"`
	Phone            string `json:"phone"`
	Name             string `json:"name"`
	ConversationOpen bool   `json:"conversation_open"`
}

// Client talks to the provider HTTP API. Every outbound call waits on the
// shared rate limiter first and runs under the retry manager.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *ratelimit.Limiter
	retrier *retry.Manager
	logger  *logging.Logger
}

func NewClient(baseURL, apiKey string, limiter *ratelimit.Limiter, retrier *retry.Manager, logger *logging.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: limiter,
		retrier: retrier,
		logger:  logger,
	}
}

// SendMessage sends a free-form message. Fails with
// ErrConversationWindowClosed when the 24-hour window is closed.
func (c *Client) SendMessage(ctx context.Context, botID, contactID, content string) error {
	body := map[string]string{
		"bot_id":     botID,
		"contact_id": contactID,
		"content":    content,
	}
	return c.do(ctx, http.MethodPost, "/v1/messages", body, nil)
}

// SendTemplate sends a pre-approved template message. Template sends are
// permitted outside the conversation window.
func (c *Client) SendTemplate(ctx context.Context, botID, contactID, template string, params []string) error {
	body := map[string]interface{}{
		"bot_id":     botID,
		"contact_id": contactID,
		"template":   template,
		"params":     params,
	}
	return c.do(ctx, http.MethodPost, "/v1/messages/template", body, nil)
}

// GetContactByPhone resolves a phone number to a provider contact.
func (c *Client) GetContactByPhone(ctx context.Context, botID, phone string) (Contact, error) {
	var out Contact
	path := fmt.Sprintf("/v1/bots/%s/contacts?phone=%s", botID, phone)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Contact{}, err
	}
	return out, nil
}

// GetConversationStatus reports whether the contact's 24-hour window is open.
func (c *Client) GetConversationStatus(ctx context.Context, botID, contactID string) (bool, error) {
	var out struct {
		Open bool `json:"open"`
	}
	path := fmt.Sprintf("/v1/bots/%s/contacts/%s/conversation", botID, contactID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Open, nil
}

func (c *Client) ListBots(ctx context.Context) ([]Bot, error) {
	var out struct {
		Bots []Bot `json:"bots"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/bots", nil, &out); err != nil {
		return nil, err
	}
	return out.Bots, nil
}

func (c *Client) ListTemplates(ctx context.Context, botID string) ([]Template, error) {
	var out struct {
		Templates []Template `json:"templates"`
	}
	path := fmt.Sprintf("/v1/bots/%s/templates", botID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Templates, nil
}

// do acquires the rate limiter, then performs the request under the retry
// manager. Provider errors are mapped to the typed errors the retry layer
// classifies.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return c.retrier.Execute(ctx, method+" "+path, func() error {
		return c.doOnce(ctx, method, path, body, out)
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	return c.mapError(resp)
}

// mapError turns a non-2xx response into the matching typed error.
func (c *Client) mapError(resp *http.Response) error {
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &apiErr); err != nil {
		apiErr.Message = string(raw)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 5 * time.Second
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	}

	switch apiErr.Code {
	case "conversation_window_closed":
		return fmt.Errorf("send to contact rejected: %w", ErrConversationWindowClosed)
	case "template_not_approved":
		return fmt.Errorf("template rejected: %w", ErrTemplateNotApproved)
	}

	return &APIError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Message}
}

// IsPermanent reports whether a provider error should skip retries and go
// straight to the fallback path.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrConversationWindowClosed) || errors.Is(err, ErrTemplateNotApproved)
}
