// Package email delivers allocation alerts through an EmailJS-compatible
// REST endpoint.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/badoux/checkmail"

	"teambudget/internal/core"
	"teambudget/internal/services"
)

// DefaultEndpoint is the public EmailJS send API.
const DefaultEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

var (
	ErrIncompleteConfig = errors.New("email provider configuration incomplete")
	ErrInvalidRecipient = errors.New("invalid recipient address")
)

// ProviderError is a non-2xx reply from the provider.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("email provider returned status %d: %s", e.StatusCode, e.Body)
}

// Client sends one templated e-mail per call. It never retries; the caller
// decides whether a failed alert is attempted again.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithEndpoint overrides the send URL.
func WithEndpoint(url string) Option {
	return func(cl *Client) { cl.endpoint = url }
}

// WithTimeout bounds every send.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.httpClient = &http.Client{Timeout: d} }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   DefaultEndpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ services.EmailSender = (*Client)(nil)

type sendRequest struct {
	ServiceID      string         `json:"service_id"`
	TemplateID     string         `json:"template_id"`
	UserID         string         `json:"user_id"`
	TemplateParams templateParams `json:"template_params"`
}

type templateParams struct {
	ToEmail     string `json:"to_email"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Message     string `json:"message"`
	AppLink     string `json:"app_link"`
}

// Send implements services.EmailSender.
func (c *Client) Send(ctx context.Context, msg services.AlertEmail, cfg core.EmailProviderConfig) error {
	if !cfg.Complete() {
		return ErrIncompleteConfig
	}
	if err := checkmail.ValidateFormat(msg.To); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}

	body, err := json.Marshal(sendRequest{
		ServiceID:  cfg.ServiceID,
		TemplateID: cfg.TemplateID,
		UserID:     cfg.PublicKey,
		TemplateParams: templateParams{
			ToEmail:     msg.To,
			Description: msg.Description,
			Amount:      msg.Amount,
			Date:        msg.Date,
			Message:     msg.Message,
			AppLink:     msg.Link,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	slog.DebugContext(ctx, "Alert e-mail accepted by provider",
		"status", resp.StatusCode,
		"duration", time.Since(start))
	return nil
}
