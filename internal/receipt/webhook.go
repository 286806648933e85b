package receipt

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const SignatureHeader = "X-Signature-256"

// WebhookConfig configures HTTP delivery of receipts.
type WebhookConfig struct {
	URL     string
	Secret  string // HMAC-SHA256 key; empty disables signing
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

type webhookPublisher struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook returns a Publisher that POSTs each receipt as JSON to cfg.URL.
// The routing key travels in the X-Receipt-Key header and, when a secret is
// set, the body is signed in X-Signature-256 as "sha256=<hex>".
func NewWebhook(cfg WebhookConfig) (Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &webhookPublisher{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: cfg.Client,
		logger: cfg.Logger,
	}, nil
}

func (p *webhookPublisher) Publish(ctx context.Context, key string, r Receipt) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "wppbot")
	req.Header.Set("X-Receipt-Key", key)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if p.secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, p.secret))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	p.logger.Debug("receipt delivered", "key", key, "dispatch_id", r.DispatchID)
	return nil
}

func (p *webhookPublisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// Sign returns the X-Signature-256 value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
