package notify

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"
)

const (
	SignatureHeader = "X-Relay-Signature"
	signaturePrefix = "blake2b="

	defaultWebhookTimeout = 5 * time.Second
)

var (
	ErrRateLimited   = errors.New("webhook rate limit exceeded")
	ErrWebhookStatus = errors.New("webhook returned non-success status")
)

type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
	// RPS <= 0 disables outbound rate limiting.
	RPS   float64
	Burst int
}

// WebhookNotifier posts fallback messages to an HTTP endpoint, typically a
// push-notification gateway.
type WebhookNotifier struct {
	url     string
	secret  []byte
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

type webhookPayload struct {
	ClientID string          `json:"client_id"`
	Message  json.RawMessage `json:"message"`
	SentAt   time.Time       `json:"sent_at"`
}

// NewWebhookNotifier validates cfg; a nil client gets one bounded by cfg.Timeout.
func NewWebhookNotifier(cfg WebhookConfig, client *http.Client) (*WebhookNotifier, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("webhook url is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("webhook url must be http(s): %q", url)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	n := &WebhookNotifier{
		url:    url,
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if cfg.Secret != "" {
		if len(cfg.Secret) > blake2b.Size {
			return nil, fmt.Errorf("webhook secret must be at most %d bytes", blake2b.Size)
		}
		n.secret = []byte(cfg.Secret)
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return n, nil
}

func (n *WebhookNotifier) Notify(ctx context.Context, id string, message json.RawMessage) error {
	if n.limiter != nil && !n.limiter.Allow() {
		return ErrRateLimited
	}
	body, err := json.Marshal(webhookPayload{ClientID: id, Message: message, SentAt: n.now()})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != nil {
		sig, err := Sign(n.secret, body)
		if err != nil {
			return err
		}
		req.Header.Set(SignatureHeader, sig)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrWebhookStatus, resp.StatusCode)
	}
	return nil
}

// Sign returns the signature header value for body: a keyed BLAKE2b-256 MAC.
func Sign(secret, body []byte) (string, error) {
	h, err := blake2b.New256(secret)
	if err != nil {
		return "", fmt.Errorf("init signature: %w", err)
	}
	_, _ = h.Write(body)
	return signaturePrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether header is a valid signature of body under secret.
func Verify(secret, body []byte, header string) bool {
	want, err := Sign(secret, body)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.TrimSpace(header))) == 1
}
