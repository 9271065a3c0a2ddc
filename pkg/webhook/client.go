// Package webhook delivers automation webhook payloads over HTTP. Delivery
// retries live here, not in the engine: the engine fires once, the client
// owns its retry policy.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config for the dispatcher client.
type Config struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	}
}

// Client posts automation events to a configured webhook endpoint.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

type envelope struct {
	Event   string                 `json:"event"`
	Payload map[string]interface{} `json:"payload"`
	SentAt  time.Time              `json:"sent_at"`
}

// Fire delivers one payload, retrying on network errors and 5xx responses
// up to MaxRetries. 4xx responses are not retried; the endpoint has
// rejected the payload and will keep rejecting it.
func (c *Client) Fire(ctx context.Context, eventType string, payload map[string]interface{}) error {
	if c.config.URL == "" {
		return fmt.Errorf("webhook url not configured")
	}
	body, err := json.Marshal(envelope{Event: eventType, Payload: payload, SentAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	attempts := c.config.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}
		lastErr = c.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		var pe *permanentError
		if errors.As(lastErr, &pe) {
			return pe.err
		}
		c.logger.Warnf("webhook: attempt %d/%d failed: %v", attempt, attempts, lastErr)
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.Secret != "" {
		req.Header.Set("X-Webhook-Secret", c.config.Secret)
	}
	req.Header.Set("User-Agent", "Autoflow-Webhook/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &permanentError{err: fmt.Errorf("webhook endpoint rejected payload: status %d", resp.StatusCode)}
	default:
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
