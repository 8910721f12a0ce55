package subscription

import (
	"time"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/quota"
)

// Subscription is the provider's view of a subscription, reduced to the
// fields entitlements depend on.
type Subscription struct {
	ID                string
	CustomerID        string
	UserID            string // from provider metadata, may be empty
	Status            string // provider status, e.g. "active", "past_due"
	CancelAtPeriodEnd bool
	PeriodEnd         time.Time
	Created           time.Time
	CanceledAt        time.Time
	ClientSecret      string // set while the first payment awaits confirmation
}

// RequiresConfirmation reports whether the client must confirm the first payment.
func (s *Subscription) RequiresConfirmation() bool {
	return s.Status == "incomplete"
}

// Invoice is the part of an invoice event the reconciler reads.
type Invoice struct {
	ID             string
	CustomerID     string
	SubscriptionID string // empty when the payload does not carry it
	AttemptCount   int64
	AmountDue      int64
	Currency       string
}

// EventKind is the closed set of provider events the reconciler understands.
type EventKind string

const (
	EventUnknown              EventKind = "unknown"
	EventSubscriptionCreated  EventKind = "subscription_created"
	EventSubscriptionUpdated  EventKind = "subscription_updated"
	EventSubscriptionDeleted  EventKind = "subscription_deleted"
	EventInvoicePaymentPaid   EventKind = "invoice_payment_succeeded"
	EventInvoicePaymentFailed EventKind = "invoice_payment_failed"
)

// WebhookEvent is a verified, normalized provider event.
// Subscription is set for subscription kinds, Invoice for invoice kinds.
// Malformed is set when the event is authentic but its object could not be
// decoded; such events are acknowledged without being applied.
type WebhookEvent struct {
	ID           string
	Kind         EventKind
	ProviderType string
	Created      time.Time
	Subscription *Subscription
	Invoice      *Invoice
	Malformed    error
}

// Marker orders this event against other updates to the same user.
func (e *WebhookEvent) Marker() entitlement.Marker {
	return entitlement.Marker{EventID: e.ID, CreatedAt: e.Created}
}

// CreateResult is returned to the client after a successful create.
type CreateResult struct {
	SubscriptionID       string             `json:"subscription_id"`
	ProviderStatus       string             `json:"provider_status"`
	Status               entitlement.Status `json:"status"`
	RequiresConfirmation bool               `json:"requires_confirmation"`
	ClientSecret         string             `json:"client_secret,omitempty"`
}

// CancelResult carries the date access ends.
type CancelResult struct {
	CancelAt time.Time `json:"cancel_at"`
}

// Status is a user's entitlement together with today's quota usage.
type Status struct {
	Tier      entitlement.Tier   `json:"tier"`
	Status    entitlement.Status `json:"status"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
	Usage     *quota.Snapshot    `json:"usage,omitempty"`
}

// WebhookOutcome classifies what HandleWebhook did with a verified event.
type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"
	WebhookStale     WebhookOutcome = "stale"
	WebhookInvalid   WebhookOutcome = "invalid"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookRecorded  WebhookOutcome = "recorded"
	WebhookMalformed WebhookOutcome = "malformed"
	WebhookError     WebhookOutcome = "error"
)

// WebhookResult is the acknowledgement for a verified event.
type WebhookResult struct {
	EventID string
	Kind    EventKind
	Outcome WebhookOutcome
}
