package subscription_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/entitlements/pkg/subscription"
)

const testWebhookSecret = "whsec_test"

func newStripeProvider(t *testing.T) *subscription.StripeProvider {
	t.Helper()
	p, err := subscription.NewStripeProvider(subscription.StripeConfig{
		APIKey:        "sk_test_123",
		WebhookSecret: testWebhookSecret,
		WebhookMaxAge: 5 * time.Minute,
	})
	require.NoError(t, err)
	return p
}

func signStripe(payload string, secret string, at time.Time) (body []byte, header string) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: at,
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func stripeEvent(id, eventType string, created int64, object string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2025-01-27.acacia","type":%q,"created":%d,"data":{"object":%s}}`,
		id, eventType, created, object)
}

func TestNewStripeProvider(t *testing.T) {
	t.Parallel()

	_, err := subscription.NewStripeProvider(subscription.StripeConfig{WebhookSecret: "x"})
	assert.ErrorIs(t, err, subscription.ErrMissingAPIKey)

	_, err = subscription.NewStripeProvider(subscription.StripeConfig{APIKey: "sk_test"})
	assert.ErrorIs(t, err, subscription.ErrMissingWebhookSecret)

	p, err := subscription.NewStripeProvider(subscription.StripeConfig{APIKey: "sk_test", WebhookSecret: "x"})
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestStripeProvider_ParseWebhook(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newStripeProvider(t)
	created := time.Now().Add(-time.Minute).Unix()

	t.Run("subscription update", func(t *testing.T) {
		t.Parallel()
		periodEnd := time.Now().AddDate(0, 1, 0).Unix()
		object := fmt.Sprintf(`{"id":"sub_1","object":"subscription","customer":"cus_1","status":"past_due",
			"cancel_at_period_end":true,"metadata":{"user_id":"u1"},
			"items":{"object":"list","data":[{"id":"si_1","current_period_end":%d}]}}`, periodEnd)
		body, header := signStripe(stripeEvent("evt_1", "customer.subscription.updated", created, object), testWebhookSecret, time.Now())

		ev, err := p.ParseWebhook(ctx, body, header)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, subscription.EventSubscriptionUpdated, ev.Kind)
		assert.Equal(t, "customer.subscription.updated", ev.ProviderType)
		assert.Equal(t, created, ev.Created.Unix())
		assert.Equal(t, "evt_1", ev.Marker().EventID)

		require.NotNil(t, ev.Subscription)
		assert.Equal(t, "sub_1", ev.Subscription.ID)
		assert.Equal(t, "cus_1", ev.Subscription.CustomerID)
		assert.Equal(t, "u1", ev.Subscription.UserID)
		assert.Equal(t, "past_due", ev.Subscription.Status)
		assert.True(t, ev.Subscription.CancelAtPeriodEnd)
		assert.Equal(t, periodEnd, ev.Subscription.PeriodEnd.Unix())
	})

	t.Run("legacy period end", func(t *testing.T) {
		t.Parallel()
		object := `{"id":"sub_2","object":"subscription","customer":"cus_2","status":"active","current_period_end":1900000000}`
		body, header := signStripe(stripeEvent("evt_2", "customer.subscription.created", created, object), testWebhookSecret, time.Now())

		ev, err := p.ParseWebhook(ctx, body, header)
		require.NoError(t, err)
		assert.Equal(t, subscription.EventSubscriptionCreated, ev.Kind)
		assert.Equal(t, int64(1900000000), ev.Subscription.PeriodEnd.Unix())
	})

	t.Run("invoice with parent subscription", func(t *testing.T) {
		t.Parallel()
		object := `{"id":"in_1","object":"invoice","customer":"cus_1","attempt_count":2,"amount_due":999,"currency":"usd",
			"parent":{"subscription_details":{"subscription":"sub_1"}}}`
		body, header := signStripe(stripeEvent("evt_3", "invoice.payment_failed", created, object), testWebhookSecret, time.Now())

		ev, err := p.ParseWebhook(ctx, body, header)
		require.NoError(t, err)
		assert.Equal(t, subscription.EventInvoicePaymentFailed, ev.Kind)
		require.NotNil(t, ev.Invoice)
		assert.Equal(t, "sub_1", ev.Invoice.SubscriptionID)
		assert.Equal(t, int64(2), ev.Invoice.AttemptCount)
		assert.Equal(t, int64(999), ev.Invoice.AmountDue)
	})

	t.Run("invoice with legacy subscription field", func(t *testing.T) {
		t.Parallel()
		object := `{"id":"in_2","object":"invoice","customer":"cus_1","subscription":"sub_9"}`
		body, header := signStripe(stripeEvent("evt_4", "invoice.payment_succeeded", created, object), testWebhookSecret, time.Now())

		ev, err := p.ParseWebhook(ctx, body, header)
		require.NoError(t, err)
		assert.Equal(t, subscription.EventInvoicePaymentPaid, ev.Kind)
		assert.Equal(t, "sub_9", ev.Invoice.SubscriptionID)
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()
		body, header := signStripe(stripeEvent("evt_5", "customer.created", created, `{"id":"cus_1","object":"customer"}`), testWebhookSecret, time.Now())

		ev, err := p.ParseWebhook(ctx, body, header)
		require.NoError(t, err)
		assert.Equal(t, subscription.EventUnknown, ev.Kind)
		assert.Nil(t, ev.Subscription)
		assert.Nil(t, ev.Invoice)
	})

	t.Run("authentic event with unexpected object shape", func(t *testing.T) {
		t.Parallel()
		object := `{"id":"sub_1","object":"subscription","customer":{"id":"cus_1"},"status":"active"}`
		body, header := signStripe(stripeEvent("evt_9", "customer.subscription.updated", created, object), testWebhookSecret, time.Now())

		ev, err := p.ParseWebhook(ctx, body, header)
		require.NoError(t, err)
		assert.Equal(t, "evt_9", ev.ID)
		assert.Equal(t, subscription.EventSubscriptionUpdated, ev.Kind)
		assert.Nil(t, ev.Subscription)
		assert.ErrorIs(t, ev.Malformed, subscription.ErrMalformedEvent)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		body, header := signStripe(stripeEvent("evt_6", "customer.created", created, `{}`), "whsec_other", time.Now())
		_, err := p.ParseWebhook(ctx, body, header)
		assert.ErrorIs(t, err, subscription.ErrBadSignature)
	})

	t.Run("expired timestamp", func(t *testing.T) {
		t.Parallel()
		body, header := signStripe(stripeEvent("evt_7", "customer.created", created, `{}`), testWebhookSecret, time.Now().Add(-time.Hour))
		_, err := p.ParseWebhook(ctx, body, header)
		assert.ErrorIs(t, err, subscription.ErrBadSignature)
	})

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()
		_, err := p.ParseWebhook(ctx, []byte(`{}`), "")
		assert.ErrorIs(t, err, subscription.ErrBadSignature)
	})

	t.Run("tampered body", func(t *testing.T) {
		t.Parallel()
		body, header := signStripe(stripeEvent("evt_8", "customer.created", created, `{}`), testWebhookSecret, time.Now())
		body = append(body[:len(body)-1], ' ', '}')
		_, err := p.ParseWebhook(ctx, body, header)
		assert.ErrorIs(t, err, subscription.ErrBadSignature)
	})
}
