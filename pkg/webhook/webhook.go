package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config is the alert endpoint read from the environment.
// An empty URL disables delivery.
type Config struct {
	URL        string        `env:"ALERT_WEBHOOK_URL"`
	Secret     string        `env:"ALERT_WEBHOOK_SECRET"`
	Timeout    time.Duration `env:"ALERT_WEBHOOK_TIMEOUT" envDefault:"5s"`
	MaxRetries int           `env:"ALERT_WEBHOOK_MAX_RETRIES" envDefault:"3"`
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// Options converts the config into per-send options.
func (c Config) Options() []SendOption {
	return []SendOption{
		WithSignature(c.Secret),
		WithTimeout(c.Timeout),
		WithMaxRetries(c.MaxRetries),
	}
}

// Sender posts JSON payloads with retries. Use NewSender.
type Sender struct {
	client *http.Client
}

// NewSender returns a Sender with a pooled HTTP client.
func NewSender() *Sender {
	return &Sender{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// NewSenderWithClient uses client for every request. Nil falls back to NewSender.
func NewSenderWithClient(client *http.Client) *Sender {
	if client == nil {
		return NewSender()
	}
	return &Sender{client: client}
}

// Send marshals data to JSON and POSTs it to target, retrying transient failures.
func (s *Sender) Send(ctx context.Context, target string, data any, opts ...SendOption) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Join(ErrInvalidPayload, err)
	}
	if err := validate(target, payload); err != nil {
		return err
	}

	o := defaultSendOptions()
	for _, opt := range opts {
		opt(o)
	}
	client := s.client
	if o.httpClient != nil {
		client = o.httpClient
	}

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.backoff.NextInterval(attempt)):
			}
		}

		result, err := deliver(ctx, client, target, payload, o)
		if o.onDelivery != nil {
			result.Attempt = attempt + 1
			o.onDelivery(result)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if permanent(result.StatusCode) {
			return fmt.Errorf("%w: %w", ErrPermanentFailure, err)
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, o.maxRetries+1, lastErr)
}

func validate(target string, payload []byte) error {
	if target == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: only http and https are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	return nil
}

func deliver(ctx context.Context, client *http.Client, target string, payload []byte, o *sendOptions) (DeliveryResult, error) {
	start := time.Now()
	var result DeliveryResult

	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		result.Error = err
		return result, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "entitlementd-alerts/1.0")
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
	if o.secret != "" {
		sig, err := Sign(o.secret, payload, time.Now())
		if err != nil {
			result.Error = err
			return result, err
		}
		sig.Apply(req.Header)
	}

	resp, err := client.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return result, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return result, fmt.Errorf("%w: %w", ErrTemporaryFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	if result.Success {
		return result, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
	if text := strings.ReplaceAll(strings.TrimSpace(string(body)), "\n", " "); text != "" {
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		msg += ": " + text
	}
	result.Error = errors.New(msg)
	return result, result.Error
}

// permanent reports 4xx responses that retrying will not fix.
func permanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}
