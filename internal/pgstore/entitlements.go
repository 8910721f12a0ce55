package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/pg"
)

const entitlementColumns = `user_id, tier, status, customer_id, subscription_id, expires_at,
	last_event_id, last_event_at, created_at, updated_at`

// EntitlementStore implements entitlement.Store.
type EntitlementStore struct {
	db DB
}

var _ entitlement.Store = (*EntitlementStore)(nil)

// NewEntitlementStore panics on a nil db.
func NewEntitlementStore(db DB) *EntitlementStore {
	if db == nil {
		panic("pgstore: nil db")
	}
	return &EntitlementStore{db: db}
}

func (s *EntitlementStore) Ensure(ctx context.Context, userID string) (entitlement.Entitlement, error) {
	if userID == "" {
		return entitlement.Entitlement{}, entitlement.ErrMissingUserID
	}
	def := entitlement.Default(userID, time.Now())
	_, err := s.db.Exec(ctx,
		`INSERT INTO entitlements (user_id, tier, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, string(def.Tier), string(def.Status), pgTime(def.CreatedAt),
	)
	if err != nil {
		return entitlement.Entitlement{}, fmt.Errorf("ensure entitlement: %w", err)
	}
	return s.Get(ctx, userID)
}

func (s *EntitlementStore) Get(ctx context.Context, userID string) (entitlement.Entitlement, error) {
	return s.one(ctx, `SELECT `+entitlementColumns+` FROM entitlements WHERE user_id = $1`, userID)
}

func (s *EntitlementStore) FindByCustomerID(ctx context.Context, customerID string) (entitlement.Entitlement, error) {
	if customerID == "" {
		return entitlement.Entitlement{}, entitlement.ErrNotFound
	}
	return s.one(ctx, `SELECT `+entitlementColumns+` FROM entitlements WHERE customer_id = $1`, customerID)
}

func (s *EntitlementStore) AttachExternalIDs(ctx context.Context, userID, customerID, subscriptionID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE entitlements SET
			customer_id = COALESCE($2, customer_id),
			subscription_id = COALESCE($3, subscription_id),
			updated_at = now()
		 WHERE user_id = $1`,
		userID, nullString(customerID), nullString(subscriptionID),
	)
	if err != nil {
		return fmt.Errorf("attach external ids: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entitlement.ErrNotFound
	}
	return nil
}

// CompareAndSwap writes next only while the row still carries expected.
func (s *EntitlementStore) CompareAndSwap(ctx context.Context, next entitlement.Entitlement, expected entitlement.Marker) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE entitlements SET
			tier = $2,
			status = $3,
			expires_at = $4,
			last_event_id = $5,
			last_event_at = $6,
			customer_id = COALESCE($7, customer_id),
			subscription_id = COALESCE($8, subscription_id),
			updated_at = now()
		 WHERE user_id = $1
		   AND last_event_id = $9
		   AND last_event_at IS NOT DISTINCT FROM $10`,
		next.UserID,
		string(next.Tier),
		string(next.Status),
		nullPtrTime(next.ExpiresAt),
		next.LastEvent.EventID,
		nullTime(next.LastEvent.CreatedAt),
		nullString(next.CustomerID),
		nullString(next.SubscriptionID),
		expected.EventID,
		nullTime(expected.CreatedAt),
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("customer id already bound to another user: %w", err)
		}
		return fmt.Errorf("compare and swap entitlement: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM entitlements WHERE user_id = $1)`, next.UserID).Scan(&exists); err != nil {
		return fmt.Errorf("compare and swap entitlement: %w", err)
	}
	if !exists {
		return entitlement.ErrNotFound
	}
	return entitlement.ErrConflict
}

func (s *EntitlementStore) one(ctx context.Context, query string, arg any) (entitlement.Entitlement, error) {
	ent, err := scanEntitlement(s.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return entitlement.Entitlement{}, entitlement.ErrNotFound
	}
	if err != nil {
		return entitlement.Entitlement{}, fmt.Errorf("load entitlement: %w", err)
	}
	return ent, nil
}

func scanEntitlement(row pgx.Row) (entitlement.Entitlement, error) {
	var (
		ent                  entitlement.Entitlement
		tier, status         string
		customerID, subID    *string
		expiresAt, lastAt    *time.Time
		lastEventID          string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&ent.UserID, &tier, &status, &customerID, &subID, &expiresAt,
		&lastEventID, &lastAt, &createdAt, &updatedAt); err != nil {
		return entitlement.Entitlement{}, err
	}
	ent.Tier = entitlement.Tier(tier)
	ent.Status = entitlement.Status(status)
	ent.CustomerID = derefString(customerID)
	ent.SubscriptionID = derefString(subID)
	if expiresAt != nil {
		v := expiresAt.UTC()
		ent.ExpiresAt = &v
	}
	ent.LastEvent.EventID = lastEventID
	if lastAt != nil {
		ent.LastEvent.CreatedAt = lastAt.UTC()
	}
	ent.CreatedAt = createdAt.UTC()
	ent.UpdatedAt = updatedAt.UTC()
	return ent, nil
}
