//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dejobratic/opsapi/internal/database/databasetest"
	"github.com/dejobratic/opsapi/internal/idempotency"
	"github.com/dejobratic/opsapi/internal/idempotency/postgres"
)

func TestStoreClaimAndLookup(t *testing.T) {
	pool := databasetest.Setup(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	won, err := store.Claim(ctx, "key-1", "hash-1")
	if err != nil {
		t.Fatalf("failed to claim key: %v", err)
	}
	if !won {
		t.Fatal("expected first claim to win")
	}

	won, err = store.Claim(ctx, "key-1", "")
	if err != nil {
		t.Fatalf("failed to claim key again: %v", err)
	}
	if won {
		t.Fatal("expected second claim to lose")
	}

	rec, err := store.Lookup(ctx, "key-1")
	if err != nil {
		t.Fatalf("failed to look up key: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record, got nil")
	}
	if rec.Status != idempotency.StatusPending {
		t.Errorf("expected status pending, got %s", rec.Status)
	}
	if rec.RequestHash != "hash-1" {
		t.Errorf("expected request hash hash-1, got %q", rec.RequestHash)
	}
	if rec.CompletedAt != nil {
		t.Errorf("expected no completion time, got %v", rec.CompletedAt)
	}
}

func TestStoreClaim_ConcurrentSingleWinner(t *testing.T) {
	pool := databasetest.Setup(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := store.Claim(ctx, "contended", "")
			if err != nil {
				t.Errorf("claim failed: %v", err)
				return
			}
			if won {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winners.Load())
	}
}

func TestStoreLookup_NotFound(t *testing.T) {
	pool := databasetest.Setup(t)
	store := postgres.NewStore(pool)

	rec, err := store.Lookup(context.Background(), "nonexistent-key")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %v", rec)
	}
}

func TestStoreComplete(t *testing.T) {
	pool := databasetest.Setup(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	// Key order and spacing must survive storage untouched.
	body := []byte(`{"name": "alpha",  "id":"e-1"}`)
	outcome := idempotency.Outcome{StatusCode: 201, Fingerprint: `W/"abc"`, Body: body}

	if _, err := store.Claim(ctx, "key-c", ""); err != nil {
		t.Fatalf("failed to claim: %v", err)
	}
	if err := store.Complete(ctx, "key-c", outcome); err != nil {
		t.Fatalf("failed to complete: %v", err)
	}

	rec, err := store.Lookup(ctx, "key-c")
	if err != nil {
		t.Fatalf("failed to look up: %v", err)
	}
	if rec.Status != idempotency.StatusCompleted {
		t.Errorf("expected completed, got %s", rec.Status)
	}
	if rec.StatusCode != 201 {
		t.Errorf("expected status code 201, got %d", rec.StatusCode)
	}
	if rec.Fingerprint != outcome.Fingerprint {
		t.Errorf("expected fingerprint %s, got %s", outcome.Fingerprint, rec.Fingerprint)
	}
	if string(rec.Body) != string(body) {
		t.Errorf("expected body %s, got %s", body, rec.Body)
	}
	if rec.CompletedAt == nil {
		t.Error("expected completion time to be set")
	}

	t.Run("same outcome again is a no-op", func(t *testing.T) {
		if err := store.Complete(ctx, "key-c", outcome); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("different outcome is refused", func(t *testing.T) {
		other := idempotency.Outcome{StatusCode: 200, Fingerprint: `W/"other"`, Body: []byte(`{}`)}
		if err := store.Complete(ctx, "key-c", other); err != idempotency.ErrOutcomeMismatch {
			t.Errorf("expected ErrOutcomeMismatch, got %v", err)
		}
	})

	t.Run("unclaimed key", func(t *testing.T) {
		if err := store.Complete(ctx, "never-claimed", outcome); err != idempotency.ErrNotClaimed {
			t.Errorf("expected ErrNotClaimed, got %v", err)
		}
	})
}

func TestStoreReleaseAndSweep(t *testing.T) {
	pool := databasetest.Setup(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	_, _ = store.Claim(ctx, "stuck", "")
	_, _ = store.Claim(ctx, "done", "")
	if err := store.Complete(ctx, "done", idempotency.Outcome{StatusCode: 200, Fingerprint: "f", Body: []byte(`{}`)}); err != nil {
		t.Fatalf("failed to complete: %v", err)
	}

	released, err := store.Release(ctx, "done")
	if err != nil || released {
		t.Errorf("expected completed key not to be released, got %v, %v", released, err)
	}

	released, err = store.Release(ctx, "stuck")
	if err != nil || !released {
		t.Errorf("expected pending key to be released, got %v, %v", released, err)
	}

	removed, err := store.Sweep(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("failed to sweep: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected nothing older than an hour, removed %d", removed)
	}

	removed, err = store.Sweep(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 swept record, got %d", removed)
	}
}
