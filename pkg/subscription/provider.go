package subscription

import "context"

// BillingProvider is the outbound surface of the payment provider.
//
// Calls are blocking network operations using the provider client's default
// timeouts. Callers treat a timeout as an unknown outcome and retry the whole
// gateway operation.
type BillingProvider interface {
	// CreateCustomer registers userID with the provider and returns the customer id.
	CreateCustomer(ctx context.Context, userID string) (string, error)

	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error)

	// CancelAtPeriodEnd schedules the subscription to end when the paid period does.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// GetInvoiceSubscriptionID returns "" for invoices not tied to a subscription.
	GetInvoiceSubscriptionID(ctx context.Context, invoiceID string) (string, error)

	// HasLiveSubscription reports whether the customer holds an active,
	// trialing or past_due subscription at the provider.
	HasLiveSubscription(ctx context.Context, customerID string) (bool, error)

	// ParseWebhook verifies the signature and normalizes the event.
	// Verification failures wrap ErrBadSignature.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

// SubscriptionRequest describes a subscription to create.
type SubscriptionRequest struct {
	CustomerID string
	PriceID    string
	UserID     string
	TrialDays  int
}
