package entitlement

import (
	"time"
)

// Tier is the feature-access level granted to a user.
type Tier string

const (
	TierFree    Tier = "FREE"
	TierPremium Tier = "PREMIUM"
)

// Status is the billing state that determines tier.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusTrialing  Status = "TRIALING"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Name implements statemachine.State.
func (s Status) Name() string { return string(s) }

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Statuses lists every status in a stable order.
func Statuses() []Status {
	return []Status{StatusActive, StatusTrialing, StatusCancelled, StatusExpired}
}

// TierFor derives the tier from status. PREMIUM holds for ACTIVE and
// TRIALING, with one exception: a CANCELLED subscription keeps premium
// access until expiresAt, after which it is FREE like EXPIRED.
func TierFor(status Status, expiresAt *time.Time, now time.Time) Tier {
	switch status {
	case StatusActive, StatusTrialing:
		return TierPremium
	case StatusCancelled:
		if expiresAt != nil && expiresAt.After(now) {
			return TierPremium
		}
	}
	return TierFree
}

// Marker orders competing updates to one entitlement record.
// CreatedAt is the provider's event creation time, EventID its unique id.
type Marker struct {
	EventID   string    `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

// IsZero reports whether no event has been applied yet.
func (m Marker) IsZero() bool {
	return m.EventID == "" && m.CreatedAt.IsZero()
}

// Equal reports whether both markers identify the same event.
func (m Marker) Equal(other Marker) bool {
	return m.EventID == other.EventID && m.CreatedAt.Equal(other.CreatedAt)
}

// IsNewerThan reports whether m should win over last.
// Provider timestamps have one-second resolution, so a distinct event sharing
// the applied timestamp is accepted; the same event replayed is not.
func (m Marker) IsNewerThan(last Marker) bool {
	if last.IsZero() {
		return true
	}
	if m.CreatedAt.After(last.CreatedAt) {
		return true
	}
	return m.CreatedAt.Equal(last.CreatedAt) && m.EventID != last.EventID
}

// Entitlement is the authoritative per-user subscription record.
type Entitlement struct {
	UserID         string     `json:"user_id"`
	Tier           Tier       `json:"tier"`
	Status         Status     `json:"status"`
	CustomerID     string     `json:"customer_id,omitempty"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	LastEvent      Marker     `json:"last_event"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Default returns the record a user starts with: no subscription, free tier.
func Default(userID string, now time.Time) Entitlement {
	return Entitlement{
		UserID:    userID,
		Tier:      TierFree,
		Status:    StatusExpired,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EffectiveTier recomputes the tier at the given instant.
// It differs from Tier only when a cancelled record's grace period lapsed
// before the provider reported the subscription as deleted.
func (e Entitlement) EffectiveTier(now time.Time) Tier {
	return TierFor(e.Status, e.ExpiresAt, now)
}

// HasSubscription reports whether a provider subscription is on file.
func (e Entitlement) HasSubscription() bool {
	return e.SubscriptionID != ""
}
