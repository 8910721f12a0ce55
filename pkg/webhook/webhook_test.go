package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/webhook"
)

type alert struct {
	Kind   string `json:"kind"`
	UserID string `json:"user_id"`
}

func TestSender_SignedDelivery(t *testing.T) {
	t.Parallel()

	const secret = "whsec_alerts"
	var got alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := webhook.VerifyRequest(r, secret, time.Minute)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.Unmarshal(body, &got)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get(webhook.HeaderID))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := webhook.NewSender().Send(context.Background(), srv.URL, alert{Kind: "payment_failed", UserID: "u1"},
		webhook.WithSignature(secret), webhook.WithNoRetry())
	require.NoError(t, err)
	assert.Equal(t, alert{Kind: "payment_failed", UserID: "u1"}, got)
}

func TestSender_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var attempts []int
	err := webhook.NewSender().Send(context.Background(), srv.URL, alert{Kind: "x"},
		webhook.WithMaxRetries(3),
		webhook.WithBackoff(webhook.FixedBackoff{Interval: time.Millisecond}),
		webhook.WithOnDelivery(func(r webhook.DeliveryResult) { attempts = append(attempts, r.Attempt) }),
	)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestSender_PermanentFailureStops(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := webhook.NewSender().Send(context.Background(), srv.URL, alert{Kind: "x"},
		webhook.WithMaxRetries(5),
		webhook.WithBackoff(webhook.FixedBackoff{Interval: time.Millisecond}),
	)
	require.ErrorIs(t, err, webhook.ErrPermanentFailure)
	assert.Contains(t, err.Error(), "nope")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSender_GivesUp(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := webhook.NewSender().Send(context.Background(), srv.URL, alert{Kind: "x"},
		webhook.WithMaxRetries(2),
		webhook.WithBackoff(webhook.FixedBackoff{Interval: time.Millisecond}),
	)
	assert.ErrorIs(t, err, webhook.ErrDeliveryFailed)
}

func TestSender_InvalidURL(t *testing.T) {
	t.Parallel()

	s := webhook.NewSender()
	for _, target := range []string{"", "ftp://example.com", "http://"} {
		err := s.Send(context.Background(), target, alert{})
		assert.ErrorIs(t, err, webhook.ErrInvalidURL, target)
	}
}

func TestSignature(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"kind":"x"}`)

	sig, err := webhook.Sign("secret", payload, now)
	require.NoError(t, err)

	assert.NoError(t, webhook.Verify("secret", payload, sig, time.Minute, now.Add(30*time.Second)))
	assert.ErrorIs(t, webhook.Verify("other", payload, sig, time.Minute, now), webhook.ErrInvalidSignature)
	assert.ErrorIs(t, webhook.Verify("secret", []byte(`{}`), sig, 0, now), webhook.ErrInvalidSignature)
	assert.ErrorIs(t, webhook.Verify("secret", payload, sig, time.Minute, now.Add(2*time.Minute)), webhook.ErrInvalidSignature)
	assert.ErrorIs(t, webhook.Verify("secret", payload, sig, time.Minute, now.Add(-2*time.Minute)), webhook.ErrInvalidSignature)

	_, err = webhook.Sign("", payload, now)
	assert.ErrorIs(t, err, webhook.ErrInvalidConfiguration)
}

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	b := webhook.ExponentialBackoff{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second}
	assert.Equal(t, time.Duration(0), b.NextInterval(0))
	assert.Equal(t, 100*time.Millisecond, b.NextInterval(1))
	assert.Equal(t, 400*time.Millisecond, b.NextInterval(3))
	assert.Equal(t, time.Second, b.NextInterval(10))

	jittered := webhook.ExponentialBackoff{InitialInterval: time.Second, JitterFactor: 0.1}
	for range 20 {
		d := jittered.NextInterval(1)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestConfig(t *testing.T) {
	t.Parallel()

	assert.False(t, webhook.Config{}.Enabled())
	cfg := webhook.Config{URL: "https://ops.example.com/hook", Secret: "s", MaxRetries: 1}
	assert.True(t, cfg.Enabled())
	assert.Len(t, cfg.Options(), 3)
}
