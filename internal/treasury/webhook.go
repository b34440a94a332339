package treasury

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tranche-vault/internal/vault/application"
)

// WebhookSink hands deployments to an external treasury over HTTP.
type WebhookSink struct {
	account string
	url     string
	token   string
	client  *http.Client
}

type webhookPayload struct {
	Type       string                 `json:"type"`
	Deployment application.Deployment `json:"deployment"`
}

// WebhookOption configures the sink.
type WebhookOption func(*WebhookSink)

// WithBearerToken sets the Authorization header sent with each deployment.
func WithBearerToken(token string) WebhookOption {
	return func(s *WebhookSink) {
		s.token = token
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(s *WebhookSink) {
		if client != nil {
			s.client = client
		}
	}
}

// NewWebhookSink constructs a sink whose custody account is account.
func NewWebhookSink(account, url string, opts ...WebhookOption) *WebhookSink {
	s := &WebhookSink{
		account: account,
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Account returns the custody account funds are moved to.
func (s *WebhookSink) Account() string { return s.account }

// Receive posts the deployment; any non-2xx reply is a rejection.
func (s *WebhookSink) Receive(ctx context.Context, deployment application.Deployment) error {
	if s == nil || s.url == "" {
		return errors.New("treasury webhook: empty url")
	}
	body, err := json.Marshal(webhookPayload{Type: "treasury.deployment", Deployment: deployment})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", deployment.ID)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("treasury webhook: status %d", resp.StatusCode)
	}
	return nil
}
