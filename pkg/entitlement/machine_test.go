package entitlement_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func marker(id string, offset int) entitlement.Marker {
	return entitlement.Marker{EventID: id, CreatedAt: t0.Add(time.Duration(offset) * time.Second)}
}

func ptr(t time.Time) *time.Time { return &t }

func newMachine(store entitlement.Store, opts ...entitlement.MachineOption) *entitlement.Machine {
	opts = append([]entitlement.MachineOption{entitlement.WithClock(func() time.Time { return t0 })}, opts...)
	return entitlement.NewMachine(store, opts...)
}

// assertInvariant checks PREMIUM iff ACTIVE or TRIALING, except that
// CANCELLED stays PREMIUM while expiresAt is in the future.
func assertInvariant(t *testing.T, e entitlement.Entitlement) {
	t.Helper()
	want := entitlement.TierFree
	switch e.Status {
	case entitlement.StatusActive, entitlement.StatusTrialing:
		want = entitlement.TierPremium
	case entitlement.StatusCancelled:
		if e.ExpiresAt != nil && e.ExpiresAt.After(t0) {
			want = entitlement.TierPremium
		}
	}
	assert.Equal(t, want, e.Tier, "tier must follow status (status=%s)", e.Status)
}

func TestMachine_Apply_ProviderStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	m := newMachine(store)
	periodEnd := t0.Add(30 * 24 * time.Hour)

	res, err := m.Apply(ctx, entitlement.Transition{
		UserID:         "u1",
		Trigger:        entitlement.TriggerActivate,
		ExpiresAt:      &periodEnd,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Marker:         marker("evt_1", 5),
	})
	require.NoError(t, err)
	assert.Equal(t, entitlement.OutcomeApplied, res.Outcome)
	assert.Equal(t, entitlement.StatusExpired, res.From)

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusActive, got.Status)
	assert.Equal(t, entitlement.TierPremium, got.Tier)
	assert.Equal(t, "cus_1", got.CustomerID)
	assert.Equal(t, "sub_1", got.SubscriptionID)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, periodEnd.Equal(*got.ExpiresAt))
	assert.Equal(t, "evt_1", got.LastEvent.EventID)
	assertInvariant(t, got)
}

func TestMachine_Apply_StalenessOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	m := newMachine(store)

	// E1 active with marker 5 arrives first, E2 past_due with marker 3 after it.
	res, err := m.Apply(ctx, entitlement.Transition{UserID: "u1", Trigger: entitlement.TriggerActivate, Marker: marker("evt_e1", 5)})
	require.NoError(t, err)
	require.Equal(t, entitlement.OutcomeApplied, res.Outcome)

	trigger, ok := entitlement.ProviderTrigger("past_due", false)
	require.True(t, ok)
	res, err = m.Apply(ctx, entitlement.Transition{UserID: "u1", Trigger: trigger, Marker: marker("evt_e2", 3)})
	require.NoError(t, err)
	assert.Equal(t, entitlement.OutcomeStale, res.Outcome)

	// A stale expire must not downgrade either.
	res, err = m.Apply(ctx, entitlement.Transition{UserID: "u1", Trigger: entitlement.TriggerExpire, Marker: marker("evt_e0", 1)})
	require.NoError(t, err)
	assert.Equal(t, entitlement.OutcomeStale, res.Outcome)

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusActive, got.Status)
	assert.Equal(t, "evt_e1", got.LastEvent.EventID)
}

func TestMachine_Apply_IdempotentReplay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	var applied atomic.Int32
	m := newMachine(store, entitlement.WithObserver(func(_ context.Context, _ entitlement.Transition, res entitlement.Result) {
		if res.Outcome == entitlement.OutcomeApplied {
			applied.Add(1)
		}
	}))

	tr := entitlement.Transition{UserID: "u1", Trigger: entitlement.TriggerTrial, Marker: marker("evt_1", 1)}
	first, err := m.Apply(ctx, tr)
	require.NoError(t, err)
	second, err := m.Apply(ctx, tr)
	require.NoError(t, err)

	assert.Equal(t, entitlement.OutcomeApplied, first.Outcome)
	assert.Equal(t, entitlement.OutcomeStale, second.Outcome)
	assert.Equal(t, int32(1), applied.Load())
}

func TestMachine_Apply_ClientCancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("keeps premium until expiry", func(t *testing.T) {
		t.Parallel()
		store := entitlement.NewMemoryStore()
		m := newMachine(store)
		periodEnd := t0.Add(10 * 24 * time.Hour)

		_, err := m.Apply(ctx, entitlement.Transition{UserID: "u1", Trigger: entitlement.TriggerActivate, ExpiresAt: &periodEnd, Marker: marker("evt_1", 1)})
		require.NoError(t, err)

		res, err := m.Apply(ctx, entitlement.Transition{UserID: "u1", Trigger: entitlement.TriggerClientCancel, Marker: marker("cancel:sub_1", 2)})
		require.NoError(t, err)
		assert.Equal(t, entitlement.OutcomeApplied, res.Outcome)
		assert.Equal(t, entitlement.StatusCancelled, res.Entitlement.Status)
		assert.Equal(t, entitlement.TierPremium, res.Entitlement.Tier)
		require.NotNil(t, res.Entitlement.ExpiresAt)
		assert.True(t, periodEnd.Equal(*res.Entitlement.ExpiresAt), "expiry must be untouched")
		assertInvariant(t, res.Entitlement)

		res, err = m.Apply(ctx, entitlement.Transition{UserID: "u1", Trigger: entitlement.TriggerDelete, Marker: marker("evt_2", 3)})
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusExpired, res.Entitlement.Status)
		assert.Equal(t, entitlement.TierFree, res.Entitlement.Tier)
	})

	t.Run("invalid without a live subscription", func(t *testing.T) {
		t.Parallel()
		store := entitlement.NewMemoryStore()
		m := newMachine(store)

		res, err := m.Apply(ctx, entitlement.Transition{UserID: "u2", Trigger: entitlement.TriggerClientCancel, Marker: marker("cancel:x", 1)})
		require.NoError(t, err)
		assert.Equal(t, entitlement.OutcomeInvalid, res.Outcome)
		assert.NotEmpty(t, res.Reason)

		got, err := store.Get(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusExpired, got.Status)
		assert.True(t, got.LastEvent.IsZero(), "record must be unchanged")
	})
}

func TestMachine_Apply_UnknownTrigger(t *testing.T) {
	t.Parallel()

	m := newMachine(entitlement.NewMemoryStore())
	res, err := m.Apply(context.Background(), entitlement.Transition{UserID: "u1", Trigger: "paused", Marker: marker("evt_1", 1)})
	require.NoError(t, err)
	assert.Equal(t, entitlement.OutcomeInvalid, res.Outcome)
}

func TestMachine_Apply_Validation(t *testing.T) {
	t.Parallel()

	m := newMachine(entitlement.NewMemoryStore())
	_, err := m.Apply(context.Background(), entitlement.Transition{Trigger: entitlement.TriggerActivate, Marker: marker("evt_1", 1)})
	assert.ErrorIs(t, err, entitlement.ErrMissingUserID)

	_, err = m.Apply(context.Background(), entitlement.Transition{UserID: "u1", Trigger: entitlement.TriggerActivate})
	assert.ErrorIs(t, err, entitlement.ErrMissingMarker)
}

func TestMachine_Apply_InvariantAcrossTriggers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	m := newMachine(store)
	future := t0.Add(time.Hour)

	steps := []entitlement.Transition{
		{Trigger: entitlement.TriggerTrial, ExpiresAt: &future},
		{Trigger: entitlement.TriggerActivate},
		{Trigger: entitlement.TriggerClientCancel},
		{Trigger: entitlement.TriggerPaymentSucceeded, ExpiresAt: ptr(t0.Add(2 * time.Hour))},
		{Trigger: entitlement.TriggerCancelPending},
		{Trigger: entitlement.TriggerExpire},
		{Trigger: entitlement.TriggerActivate},
		{Trigger: entitlement.TriggerDelete},
	}

	for i, step := range steps {
		step.UserID = "u1"
		step.Marker = marker(fmt.Sprintf("evt_%d", i), i+1)
		res, err := m.Apply(ctx, step)
		require.NoError(t, err)
		require.Equal(t, entitlement.OutcomeApplied, res.Outcome, "step %d (%s)", i, step.Trigger)
		assertInvariant(t, res.Entitlement)
	}
}

func TestMachine_Apply_CancelPaymentRace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	run := func(t *testing.T, cancelAt, paidAt int, want entitlement.Status) {
		for i := range 50 {
			store := entitlement.NewMemoryStore()
			m := newMachine(store)
			user := fmt.Sprintf("u%d", i)
			_, err := m.Apply(ctx, entitlement.Transition{UserID: user, Trigger: entitlement.TriggerActivate, ExpiresAt: ptr(t0.Add(time.Hour)), Marker: marker("evt_start", 0)})
			require.NoError(t, err)

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := m.Apply(ctx, entitlement.Transition{UserID: user, Trigger: entitlement.TriggerClientCancel, Marker: marker("cancel:sub", cancelAt)})
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := m.Apply(ctx, entitlement.Transition{UserID: user, Trigger: entitlement.TriggerPaymentSucceeded, ExpiresAt: ptr(t0.Add(48 * time.Hour)), Marker: marker("evt_paid", paidAt)})
				assert.NoError(t, err)
			}()
			wg.Wait()

			got, err := store.Get(ctx, user)
			require.NoError(t, err)
			assert.Equal(t, want, got.Status)
			assertInvariant(t, got)
		}
	}

	t.Run("payment later wins", func(t *testing.T) {
		t.Parallel()
		run(t, 1, 2, entitlement.StatusActive)
	})
	t.Run("cancel later wins", func(t *testing.T) {
		t.Parallel()
		run(t, 2, 1, entitlement.StatusCancelled)
	})
}

type conflictingStore struct {
	*entitlement.MemoryStore
	failures atomic.Int32
	err      error
}

func (s *conflictingStore) CompareAndSwap(ctx context.Context, next entitlement.Entitlement, expected entitlement.Marker) error {
	if s.failures.Add(-1) >= 0 {
		return s.err
	}
	return s.MemoryStore.CompareAndSwap(ctx, next, expected)
}

func TestMachine_Apply_ConflictRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("retries until the swap lands", func(t *testing.T) {
		t.Parallel()
		store := &conflictingStore{MemoryStore: entitlement.NewMemoryStore(), err: entitlement.ErrConflict}
		store.failures.Store(2)
		m := newMachine(store)

		res, err := m.Apply(ctx, entitlement.Transition{UserID: "u1", Trigger: entitlement.TriggerActivate, Marker: marker("evt_1", 1)})
		require.NoError(t, err)
		assert.Equal(t, entitlement.OutcomeApplied, res.Outcome)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		t.Parallel()
		store := &conflictingStore{MemoryStore: entitlement.NewMemoryStore(), err: entitlement.ErrConflict}
		store.failures.Store(100)
		m := newMachine(store, entitlement.WithMaxAttempts(3))

		_, err := m.Apply(ctx, entitlement.Transition{UserID: "u1", Trigger: entitlement.TriggerActivate, Marker: marker("evt_1", 1)})
		assert.ErrorIs(t, err, entitlement.ErrTooManyConflicts)
	})

	t.Run("surfaces store failures", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("disk on fire")
		store := &conflictingStore{MemoryStore: entitlement.NewMemoryStore(), err: boom}
		store.failures.Store(1)
		m := newMachine(store)

		_, err := m.Apply(ctx, entitlement.Transition{UserID: "u1", Trigger: entitlement.TriggerActivate, Marker: marker("evt_1", 1)})
		assert.ErrorIs(t, err, boom)
	})
}

func TestMapProviderStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want entitlement.Status
		ok   bool
	}{
		{"active", entitlement.StatusActive, true},
		{"trialing", entitlement.StatusTrialing, true},
		{"past_due", entitlement.StatusActive, true},
		{"canceled", entitlement.StatusExpired, true},
		{"incomplete_expired", entitlement.StatusExpired, true},
		{"unpaid", entitlement.StatusExpired, true},
		{"incomplete", "", false},
		{"paused", "", false},
	}
	for _, tt := range tests {
		got, ok := entitlement.MapProviderStatus(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestProviderTrigger(t *testing.T) {
	t.Parallel()

	tr, ok := entitlement.ProviderTrigger("active", false)
	assert.True(t, ok)
	assert.Equal(t, entitlement.TriggerActivate, tr)

	tr, _ = entitlement.ProviderTrigger("active", true)
	assert.Equal(t, entitlement.TriggerCancelPending, tr)

	tr, _ = entitlement.ProviderTrigger("trialing", false)
	assert.Equal(t, entitlement.TriggerTrial, tr)

	tr, _ = entitlement.ProviderTrigger("unpaid", true)
	assert.Equal(t, entitlement.TriggerExpire, tr)

	_, ok = entitlement.ProviderTrigger("incomplete", false)
	assert.False(t, ok)
}
