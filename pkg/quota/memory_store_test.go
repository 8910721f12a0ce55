package quota_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/quota"
)

func TestMemoryStore_Consume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := quota.NewMemoryStore()
	day := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	used, ok, err := s.Consume(ctx, quota.NewKey("u1", quota.MetricMessages, day), 2, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), used)

	used, ok, err = s.Consume(ctx, quota.NewKey("u1", quota.MetricMessages, day), 2, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), used)

	used, ok, err = s.Consume(ctx, quota.NewKey("u1", quota.MetricMessages, day), 100, quota.Unlimited)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(102), used)

	// Other users and metrics are independent.
	used, ok, err = s.Consume(ctx, quota.NewKey("u2", quota.MetricMessages, day), 1, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), used)

	_, _, err = s.Consume(ctx, quota.NewKey("u1", quota.MetricVoiceSeconds, day), 30, 300)
	require.NoError(t, err)
	_, _, err = s.Consume(ctx, quota.NewKey("u1", quota.MetricPhotos, day), 1, 5)
	require.NoError(t, err)

	rec, err := s.Record(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(102), rec.MessagesUsed)
	assert.Equal(t, int64(30), rec.VoiceSecondsUsed)
	assert.Equal(t, int64(1), rec.PhotosStored)
	assert.Equal(t, int64(30), rec.Used(quota.MetricVoiceSeconds))
	assert.Equal(t, time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC), rec.ResetAt())
}

func TestMemoryStore_RecordMissingReadsZero(t *testing.T) {
	t.Parallel()

	rec, err := quota.NewMemoryStore().Record(context.Background(), "ghost", time.Now())
	require.NoError(t, err)
	assert.Zero(t, rec.MessagesUsed)
	assert.Zero(t, rec.VoiceSecondsUsed)
	assert.Zero(t, rec.PhotosStored)
}

func TestMemoryStore_PruneKeepsLifetime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := quota.NewMemoryStore()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := s.Consume(ctx, quota.NewKey("u1", quota.MetricMessages, old), 1, quota.Unlimited)
	require.NoError(t, err)
	_, _, err = s.Consume(ctx, quota.NewKey("u1", quota.MetricMessages, recent), 1, quota.Unlimited)
	require.NoError(t, err)
	_, _, err = s.Consume(ctx, quota.NewKey("u1", quota.MetricPhotos, old), 4, quota.Unlimited)
	require.NoError(t, err)

	n, err := s.Prune(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := s.Record(ctx, "u1", old)
	require.NoError(t, err)
	assert.Zero(t, rec.MessagesUsed)
	assert.Equal(t, int64(4), rec.PhotosStored)

	rec, err = s.Record(ctx, "u1", recent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.MessagesUsed)
}
