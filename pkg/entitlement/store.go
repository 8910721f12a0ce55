package entitlement

import "context"

// Store persists entitlement records.
//
// CompareAndSwap is the only way tier, status, expiry and marker change.
// Implementations must write next only when the stored marker still equals
// expected and return ErrConflict otherwise. Non-empty external ids in next
// are written as well; empty ones never clear what is stored.
type Store interface {
	// Ensure returns the user's record, creating the default one if absent.
	Ensure(ctx context.Context, userID string) (Entitlement, error)

	// Get returns ErrNotFound when the user has no record.
	Get(ctx context.Context, userID string) (Entitlement, error)

	// FindByCustomerID resolves the record owning a provider customer.
	FindByCustomerID(ctx context.Context, customerID string) (Entitlement, error)

	// AttachExternalIDs records provider references without touching status.
	// Empty arguments are ignored.
	AttachExternalIDs(ctx context.Context, userID, customerID, subscriptionID string) error

	CompareAndSwap(ctx context.Context, next Entitlement, expected Marker) error
}
