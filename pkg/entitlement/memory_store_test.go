package entitlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ensure creates the default record once", func(t *testing.T) {
		t.Parallel()
		s := entitlement.NewMemoryStore()

		_, err := s.Get(ctx, "u1")
		require.ErrorIs(t, err, entitlement.ErrNotFound)

		first, err := s.Ensure(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusExpired, first.Status)
		assert.Equal(t, entitlement.TierFree, first.Tier)

		second, err := s.Ensure(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, first.CreatedAt, second.CreatedAt)

		_, err = s.Ensure(ctx, "")
		assert.ErrorIs(t, err, entitlement.ErrMissingUserID)
	})

	t.Run("external ids are never cleared", func(t *testing.T) {
		t.Parallel()
		s := entitlement.NewMemoryStore()
		_, err := s.Ensure(ctx, "u1")
		require.NoError(t, err)

		require.NoError(t, s.AttachExternalIDs(ctx, "u1", "cus_1", ""))
		require.NoError(t, s.AttachExternalIDs(ctx, "u1", "", "sub_1"))
		require.NoError(t, s.AttachExternalIDs(ctx, "u1", "", ""))

		got, err := s.FindByCustomerID(ctx, "cus_1")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, "sub_1", got.SubscriptionID)

		assert.ErrorIs(t, s.AttachExternalIDs(ctx, "missing", "cus", ""), entitlement.ErrNotFound)
		_, err = s.FindByCustomerID(ctx, "cus_unknown")
		assert.ErrorIs(t, err, entitlement.ErrNotFound)
	})

	t.Run("compare and swap checks the marker", func(t *testing.T) {
		t.Parallel()
		s := entitlement.NewMemoryStore()
		cur, err := s.Ensure(ctx, "u1")
		require.NoError(t, err)

		next := cur
		next.Status = entitlement.StatusActive
		next.Tier = entitlement.TierPremium
		next.LastEvent = entitlement.Marker{EventID: "evt_1", CreatedAt: time.Unix(100, 0)}
		require.NoError(t, s.CompareAndSwap(ctx, next, cur.LastEvent))

		// Same expectation again is now out of date.
		next.LastEvent = entitlement.Marker{EventID: "evt_2", CreatedAt: time.Unix(200, 0)}
		assert.ErrorIs(t, s.CompareAndSwap(ctx, next, cur.LastEvent), entitlement.ErrConflict)

		got, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "evt_1", got.LastEvent.EventID)
		assert.Equal(t, entitlement.StatusActive, got.Status)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		t.Parallel()
		s := entitlement.NewMemoryStore()
		cur, err := s.Ensure(ctx, "u1")
		require.NoError(t, err)

		expires := time.Unix(500, 0)
		next := cur
		next.ExpiresAt = &expires
		next.LastEvent = entitlement.Marker{EventID: "evt_1", CreatedAt: time.Unix(100, 0)}
		require.NoError(t, s.CompareAndSwap(ctx, next, cur.LastEvent))

		got, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		*got.ExpiresAt = time.Unix(0, 0)

		again, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, again.ExpiresAt.Equal(expires))
	})
}
