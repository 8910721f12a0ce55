package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// metadataUserID is the provider metadata key carrying our user id.
const metadataUserID = "user_id"

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	APIKey        string        `env:"STRIPE_API_KEY,required"`
	WebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET,required"`
	WebhookMaxAge time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`
}

// StripeProvider implements BillingProvider for Stripe.
type StripeProvider struct {
	client *stripe.Client
	config StripeConfig
}

// NewStripeProvider creates a Stripe-backed provider.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if config.WebhookMaxAge <= 0 {
		config.WebhookMaxAge = webhook.DefaultTolerance
	}
	return &StripeProvider{
		client: stripe.NewClient(config.APIKey),
		config: config,
	}, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, userID string) (string, error) {
	params := &stripe.CustomerCreateParams{
		Metadata: map[string]string{metadataUserID: userID},
	}
	// A retried create returns the same customer instead of a duplicate.
	params.SetIdempotencyKey("customer-" + userID)
	c, err := p.client.V1Customers.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

func (p *StripeProvider) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	_, err := p.client.V1PaymentMethods.Attach(ctx, paymentMethodID, &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	})
	if err != nil {
		return fmt.Errorf("attach payment method: %w", err)
	}
	return nil
}

func (p *StripeProvider) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	_, err := p.client.V1Customers.Update(ctx, customerID, &stripe.CustomerUpdateParams{
		InvoiceSettings: &stripe.CustomerUpdateInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	})
	if err != nil {
		return fmt.Errorf("set default payment method: %w", err)
	}
	return nil
}

func (p *StripeProvider) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	params := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(req.CustomerID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{Price: stripe.String(req.PriceID)},
		},
		// Charge the default payment method now; SCA leaves it incomplete.
		PaymentBehavior: stripe.String("allow_incomplete"),
		Metadata:        map[string]string{metadataUserID: req.UserID},
	}
	if req.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(req.TrialDays))
	}
	params.AddExpand("latest_invoice.confirmation_secret")

	sub, err := p.client.V1Subscriptions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return fromStripeSubscription(sub), nil
}

func (p *StripeProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	sub, err := p.client.V1Subscriptions.Update(ctx, subscriptionID, &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}
	return fromStripeSubscription(sub), nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	sub, err := p.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve subscription: %w", err)
	}
	return fromStripeSubscription(sub), nil
}

func (p *StripeProvider) GetInvoiceSubscriptionID(ctx context.Context, invoiceID string) (string, error) {
	inv, err := p.client.V1Invoices.Retrieve(ctx, invoiceID, nil)
	if err != nil {
		return "", fmt.Errorf("retrieve invoice: %w", err)
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
		return inv.Parent.SubscriptionDetails.Subscription.ID, nil
	}
	return "", nil
}

func (p *StripeProvider) HasLiveSubscription(ctx context.Context, customerID string) (bool, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	for sub, err := range p.client.V1Subscriptions.List(ctx, params) {
		if err != nil {
			return false, fmt.Errorf("list subscriptions: %w", err)
		}
		switch sub.Status {
		case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue:
			return true, nil
		}
	}
	return false, nil
}

// ParseWebhook verifies the Stripe-Signature header and normalizes the event.
// An authentic event whose object cannot be decoded is returned with
// Malformed set rather than as an error.
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	return parseStripeEvent(payload, signature, p.config.WebhookSecret, p.config.WebhookMaxAge)
}

func parseStripeEvent(payload []byte, signature, secret string, tolerance time.Duration) (*WebhookEvent, error) {
	if signature == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrBadSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrBadSignature, err)
	}

	out := &WebhookEvent{
		ID:           event.ID,
		Kind:         stripeEventKind(string(event.Type)),
		ProviderType: string(event.Type),
		Created:      unixTime(event.Created),
	}
	if event.Data == nil {
		return out, nil
	}

	switch out.Kind {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripeSubscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			out.Malformed = errors.Join(ErrMalformedEvent, err)
			return out, nil
		}
		out.Subscription = sub.normalize()
	case EventInvoicePaymentPaid, EventInvoicePaymentFailed:
		var inv stripeInvoicePayload
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			out.Malformed = errors.Join(ErrMalformedEvent, err)
			return out, nil
		}
		out.Invoice = inv.normalize()
	}
	return out, nil
}

func stripeEventKind(eventType string) EventKind {
	switch eventType {
	case "customer.subscription.created":
		return EventSubscriptionCreated
	case "customer.subscription.updated":
		return EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return EventSubscriptionDeleted
	case "invoice.payment_succeeded":
		return EventInvoicePaymentPaid
	case "invoice.payment_failed":
		return EventInvoicePaymentFailed
	}
	return EventUnknown
}

type stripeSubscriptionPayload struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Created           int64             `json:"created"`
	CanceledAt        int64             `json:"canceled_at"`
	CurrentPeriodEnd  int64             `json:"current_period_end"` // pre-2025 API versions
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (s stripeSubscriptionPayload) normalize() *Subscription {
	end := s.CurrentPeriodEnd
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd > end {
			end = item.CurrentPeriodEnd
		}
	}
	return &Subscription{
		ID:                s.ID,
		CustomerID:        s.Customer,
		UserID:            s.Metadata[metadataUserID],
		Status:            s.Status,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		PeriodEnd:         unixTime(end),
		Created:           unixTime(s.Created),
		CanceledAt:        unixTime(s.CanceledAt),
	}
}

type stripeInvoicePayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"` // pre-2025 API versions
	AttemptCount int64  `json:"attempt_count"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (i stripeInvoicePayload) normalize() *Invoice {
	subID := i.Parent.SubscriptionDetails.Subscription
	if subID == "" {
		subID = i.Subscription
	}
	return &Invoice{
		ID:             i.ID,
		CustomerID:     i.Customer,
		SubscriptionID: subID,
		AttemptCount:   i.AttemptCount,
		AmountDue:      i.AmountDue,
		Currency:       i.Currency,
	}
}

func fromStripeSubscription(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                s.ID,
		UserID:            s.Metadata[metadataUserID],
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Created:           unixTime(s.Created),
		CanceledAt:        unixTime(s.CanceledAt),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if end := unixTime(item.CurrentPeriodEnd); end.After(out.PeriodEnd) {
				out.PeriodEnd = end
			}
		}
	}
	if s.LatestInvoice != nil && s.LatestInvoice.ConfirmationSecret != nil {
		out.ClientSecret = s.LatestInvoice.ConfirmationSecret.ClientSecret
	}
	return out
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
