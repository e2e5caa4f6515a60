package idempotency_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/opsapi/internal/idempotency"
	"github.com/dejobratic/opsapi/internal/idempotency/memory"
)

type mockStore struct {
	claimFunc    func(ctx context.Context, key, requestHash string) (bool, error)
	lookupFunc   func(ctx context.Context, key string) (*idempotency.Record, error)
	completeFunc func(ctx context.Context, key string, outcome idempotency.Outcome) error
}

func (m *mockStore) Claim(ctx context.Context, key, requestHash string) (bool, error) {
	if m.claimFunc != nil {
		return m.claimFunc(ctx, key, requestHash)
	}
	return true, nil
}

func (m *mockStore) Lookup(ctx context.Context, key string) (*idempotency.Record, error) {
	if m.lookupFunc != nil {
		return m.lookupFunc(ctx, key)
	}
	return nil, nil
}

func (m *mockStore) Complete(ctx context.Context, key string, outcome idempotency.Outcome) error {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, key, outcome)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCoordinator_FirstRequestProceeds(t *testing.T) {
	c := idempotency.NewCoordinator(memory.NewStore(), discardLogger(), nil)

	rec, err := c.Begin(context.Background(), idempotency.Request{Key: "abc"})

	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCoordinator_ReplayAfterCompletion(t *testing.T) {
	ctx := context.Background()
	c := idempotency.NewCoordinator(memory.NewStore(), discardLogger(), nil)

	_, err := c.Begin(ctx, idempotency.Request{Key: "abc"})
	require.NoError(t, err)

	body := []byte(`{"id":"1","name":"x"}`)
	require.NoError(t, c.Finish(ctx, idempotency.Request{Key: "abc"}, idempotency.Outcome{
		StatusCode:  201,
		Fingerprint: `W/"f1"`,
		Body:        body,
	}))

	rec, err := c.Begin(ctx, idempotency.Request{Key: "abc"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, idempotency.StatusCompleted, rec.Status)
	assert.Equal(t, 201, rec.StatusCode)
	assert.Equal(t, `W/"f1"`, rec.Fingerprint)
	assert.Equal(t, body, rec.Body)
}

func TestCoordinator_PendingKeyConflicts(t *testing.T) {
	ctx := context.Background()
	c := idempotency.NewCoordinator(memory.NewStore(), discardLogger(), nil)

	_, err := c.Begin(ctx, idempotency.Request{Key: "abc"})
	require.NoError(t, err)

	_, err = c.Begin(ctx, idempotency.Request{Key: "abc"})
	assert.ErrorIs(t, err, idempotency.ErrDuplicateInFlight)
}

func TestCoordinator_AbandonedKeyStaysPending(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := idempotency.NewCoordinator(store, discardLogger(), nil)

	_, err := c.Begin(ctx, idempotency.Request{Key: "abc"})
	require.NoError(t, err)
	c.Abandon(ctx, idempotency.Request{Key: "abc"}, errors.New("handler failed"))

	_, err = c.Begin(ctx, idempotency.Request{Key: "abc"})
	assert.ErrorIs(t, err, idempotency.ErrDuplicateInFlight)

	released, err := store.Release(ctx, "abc")
	require.NoError(t, err)
	require.True(t, released)

	rec, err := c.Begin(ctx, idempotency.Request{Key: "abc"})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCoordinator_ConcurrentRequestsRunOnce(t *testing.T) {
	ctx := context.Background()
	c := idempotency.NewCoordinator(memory.NewStore(), discardLogger(), nil)

	const workers = 50
	var (
		executed  atomic.Int32
		conflicts atomic.Int32
		replays   atomic.Int32
		wg        sync.WaitGroup
		start     = make(chan struct{})
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			rec, err := c.Begin(ctx, idempotency.Request{Key: "same-key"})
			switch {
			case errors.Is(err, idempotency.ErrDuplicateInFlight):
				conflicts.Add(1)
			case err != nil:
				t.Errorf("unexpected error: %v", err)
			case rec != nil:
				replays.Add(1)
			default:
				executed.Add(1)
				if err := c.Finish(ctx, idempotency.Request{Key: "same-key"}, idempotency.Outcome{StatusCode: 201, Fingerprint: "f", Body: []byte(`{}`)}); err != nil {
					t.Errorf("finish failed: %v", err)
				}
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), executed.Load())
	assert.Equal(t, int32(workers), executed.Load()+conflicts.Load()+replays.Load())
}

func TestCoordinator_LostClaimReplaysWhenHolderCompleted(t *testing.T) {
	lookups := 0
	store := &mockStore{
		lookupFunc: func(ctx context.Context, key string) (*idempotency.Record, error) {
			lookups++
			if lookups == 1 {
				return nil, nil
			}
			return &idempotency.Record{Key: key, Status: idempotency.StatusCompleted, StatusCode: 200, Body: []byte(`{}`)}, nil
		},
		claimFunc: func(ctx context.Context, key, requestHash string) (bool, error) {
			return false, nil
		},
	}
	c := idempotency.NewCoordinator(store, discardLogger(), nil)

	rec, err := c.Begin(context.Background(), idempotency.Request{Key: "k"})

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, lookups)
}

func TestCoordinator_StoreFailuresAreWrapped(t *testing.T) {
	storeErr := errors.New("connection refused")

	tests := []struct {
		name  string
		store *mockStore
	}{
		{
			name: "lookup",
			store: &mockStore{lookupFunc: func(ctx context.Context, key string) (*idempotency.Record, error) {
				return nil, storeErr
			}},
		},
		{
			name: "claim",
			store: &mockStore{claimFunc: func(ctx context.Context, key, requestHash string) (bool, error) {
				return false, storeErr
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := idempotency.NewCoordinator(tt.store, discardLogger(), nil)

			_, err := c.Begin(context.Background(), idempotency.Request{Key: "k"})

			assert.ErrorIs(t, err, idempotency.ErrStoreUnavailable)
			assert.ErrorIs(t, err, storeErr)
		})
	}
}

func TestCoordinator_Finish(t *testing.T) {
	t.Run("store failure is wrapped", func(t *testing.T) {
		storeErr := errors.New("timeout")
		c := idempotency.NewCoordinator(&mockStore{
			completeFunc: func(ctx context.Context, key string, outcome idempotency.Outcome) error {
				return storeErr
			},
		}, discardLogger(), nil)

		err := c.Finish(context.Background(), idempotency.Request{Key: "k"}, idempotency.Outcome{})

		assert.ErrorIs(t, err, idempotency.ErrStoreUnavailable)
		assert.ErrorIs(t, err, storeErr)
	})

	t.Run("mismatch passes through", func(t *testing.T) {
		c := idempotency.NewCoordinator(&mockStore{
			completeFunc: func(ctx context.Context, key string, outcome idempotency.Outcome) error {
				return idempotency.ErrOutcomeMismatch
			},
		}, discardLogger(), nil)

		err := c.Finish(context.Background(), idempotency.Request{Key: "k"}, idempotency.Outcome{})

		assert.ErrorIs(t, err, idempotency.ErrOutcomeMismatch)
		assert.NotErrorIs(t, err, idempotency.ErrStoreUnavailable)
	})
}

func TestCoordinator_RejectsInvalidKey(t *testing.T) {
	called := false
	c := idempotency.NewCoordinator(&mockStore{
		lookupFunc: func(ctx context.Context, key string) (*idempotency.Record, error) {
			called = true
			return nil, nil
		},
	}, discardLogger(), nil)

	for _, key := range []string{"", strings.Repeat("k", idempotency.MaxKeyLength+1)} {
		_, err := c.Begin(context.Background(), idempotency.Request{Key: key})
		assert.ErrorIs(t, err, idempotency.ErrInvalidKey)
	}
	assert.False(t, called)
}

func TestCoordinator_ScopesKeysPerCaller(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := idempotency.NewCoordinator(store, discardLogger(), nil)

	alice := idempotency.Request{Key: "shared", Scope: "alice"}
	_, err := c.Begin(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, c.Finish(ctx, alice, idempotency.Outcome{StatusCode: 201, Fingerprint: "f", Body: []byte(`{"owner":"alice"}`)}))

	rec, err := c.Begin(ctx, idempotency.Request{Key: "shared", Scope: "bob"})
	require.NoError(t, err)
	assert.Nil(t, rec, "another caller's key must not replay")

	stored, err := store.Lookup(ctx, "5:alice:shared")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, []byte(`{"owner":"alice"}`), stored.Body)
}

func TestStorageKey(t *testing.T) {
	assert.Equal(t, "k", idempotency.StorageKey("", "k"))
	assert.Equal(t, "3:bob:k", idempotency.StorageKey("bob", "k"))
	assert.NotEqual(t, idempotency.StorageKey("a:b", "c"), idempotency.StorageKey("a", "b:c"))
}

func TestCoordinator_RejectsReusedKey(t *testing.T) {
	ctx := context.Background()
	c := idempotency.NewCoordinator(memory.NewStore(), discardLogger(), nil)

	first := idempotency.Request{Key: "k", Hash: "h1"}
	_, err := c.Begin(ctx, first)
	require.NoError(t, err)

	t.Run("while pending", func(t *testing.T) {
		_, err := c.Begin(ctx, idempotency.Request{Key: "k", Hash: "h2"})
		assert.ErrorIs(t, err, idempotency.ErrKeyReused)
	})

	require.NoError(t, c.Finish(ctx, first, idempotency.Outcome{StatusCode: 201, Fingerprint: "f", Body: []byte(`{}`)}))

	t.Run("after completion", func(t *testing.T) {
		_, err := c.Begin(ctx, idempotency.Request{Key: "k", Hash: "h2"})
		assert.ErrorIs(t, err, idempotency.ErrKeyReused)
	})

	t.Run("same request replays", func(t *testing.T) {
		rec, err := c.Begin(ctx, first)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "h1", rec.RequestHash)
	})

	t.Run("unhashed request is not checked", func(t *testing.T) {
		rec, err := c.Begin(ctx, idempotency.Request{Key: "k"})
		require.NoError(t, err)
		assert.NotNil(t, rec)
	})
}
