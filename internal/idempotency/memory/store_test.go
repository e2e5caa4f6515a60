package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/opsapi/internal/idempotency"
)

func TestStoreClaim(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	won, err := store.Claim(ctx, "k1", "hash-1")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.Claim(ctx, "k1", "")
	require.NoError(t, err)
	assert.False(t, won)

	rec, err := store.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, idempotency.StatusPending, rec.Status)
	assert.Equal(t, "hash-1", rec.RequestHash)
	assert.Nil(t, rec.CompletedAt)
}

func TestStoreClaim_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := store.Claim(ctx, "shared", "")
			if err == nil && won {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestStoreLookup_NotFound(t *testing.T) {
	rec, err := NewStore().Lookup(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStoreComplete(t *testing.T) {
	ctx := context.Background()
	outcome := idempotency.Outcome{StatusCode: 201, Fingerprint: `W/"one"`, Body: []byte(`{"id":"1"}`)}

	t.Run("completes a pending record", func(t *testing.T) {
		store := NewStore()
		_, _ = store.Claim(ctx, "k", "")

		require.NoError(t, store.Complete(ctx, "k", outcome))

		rec, err := store.Lookup(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, idempotency.StatusCompleted, rec.Status)
		assert.Equal(t, 201, rec.StatusCode)
		assert.Equal(t, outcome.Fingerprint, rec.Fingerprint)
		assert.Equal(t, outcome.Body, rec.Body)
		assert.NotNil(t, rec.CompletedAt)
	})

	t.Run("repeating the same outcome is a no-op", func(t *testing.T) {
		store := NewStore()
		_, _ = store.Claim(ctx, "k", "")
		require.NoError(t, store.Complete(ctx, "k", outcome))

		assert.NoError(t, store.Complete(ctx, "k", outcome))
	})

	t.Run("refuses a different outcome", func(t *testing.T) {
		store := NewStore()
		_, _ = store.Claim(ctx, "k", "")
		require.NoError(t, store.Complete(ctx, "k", outcome))

		other := idempotency.Outcome{StatusCode: 201, Fingerprint: `W/"two"`, Body: []byte(`{"id":"2"}`)}
		assert.ErrorIs(t, store.Complete(ctx, "k", other), idempotency.ErrOutcomeMismatch)

		rec, _ := store.Lookup(ctx, "k")
		assert.Equal(t, outcome.Body, rec.Body)
	})

	t.Run("unknown key", func(t *testing.T) {
		assert.ErrorIs(t, NewStore().Complete(ctx, "nope", outcome), idempotency.ErrNotClaimed)
	})

	t.Run("stored body is isolated from callers", func(t *testing.T) {
		store := NewStore()
		_, _ = store.Claim(ctx, "k", "")
		body := []byte(`{"id":"1"}`)
		require.NoError(t, store.Complete(ctx, "k", idempotency.Outcome{Fingerprint: "f", Body: body}))
		body[0] = 'X'

		rec, _ := store.Lookup(ctx, "k")
		rec.Body[1] = 'Y'

		again, _ := store.Lookup(ctx, "k")
		assert.Equal(t, `{"id":"1"}`, string(again.Body))
	})
}

func TestStoreReleaseAndSweep(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	_, _ = store.Claim(ctx, "pending", "")
	_, _ = store.Claim(ctx, "old", "")
	require.NoError(t, store.Complete(ctx, "old", idempotency.Outcome{Fingerprint: "f"}))
	clock = clock.Add(48 * time.Hour)
	_, _ = store.Claim(ctx, "fresh", "")
	require.NoError(t, store.Complete(ctx, "fresh", idempotency.Outcome{Fingerprint: "f"}))

	released, err := store.Release(ctx, "old")
	require.NoError(t, err)
	assert.False(t, released, "completed records are not released")

	released, err = store.Release(ctx, "pending")
	require.NoError(t, err)
	assert.True(t, released)

	removed, err := store.Sweep(ctx, clock.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	rec, _ := store.Lookup(ctx, "old")
	assert.Nil(t, rec)
	rec, _ = store.Lookup(ctx, "fresh")
	assert.NotNil(t, rec)
}
