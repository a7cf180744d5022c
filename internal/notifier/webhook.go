package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/models"
	buildinfo "github.com/good-yellow-bee/pawwatch/pkg/config"
)

// WebhookConfig holds outbound webhook configuration.
type WebhookConfig struct {
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	Timeout   time.Duration     `yaml:"timeout"`
	AllowHTTP bool              `yaml:"allow_http"` // only for local receivers
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !c.AllowHTTP && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

// WebhookSink posts each notification as JSON to an external endpoint, such
// as a push or SMS gateway.
type WebhookSink struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(config WebhookConfig) (*WebhookSink, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &WebhookSink{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Name returns "webhook".
func (s *WebhookSink) Name() string {
	return "webhook"
}

// webhookPayload is the body posted for each notification.
type webhookPayload struct {
	Event        string               `json:"event"`
	Notification *models.Notification `json:"notification"`
}

// Send posts the notification. Any non-2xx status is an error.
func (s *WebhookSink) Send(ctx context.Context, n *models.Notification) error {
	data, err := json.Marshal(webhookPayload{Event: "notification.created", Notification: n})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close is a no-op for the webhook sink.
func (s *WebhookSink) Close() error {
	return nil
}
