// Package idempotency coordinates at-most-once execution of write requests
// identified by a client supplied key.
//
// Mutual exclusion between concurrent requests carrying the same key is
// delegated entirely to the Store's atomic insert-if-absent. The package
// holds no in-process lock, so the guarantee survives multiple server
// instances sharing one store.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a key.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// MaxKeyLength bounds the accepted key size.
const MaxKeyLength = 255

var (
	// ErrDuplicateInFlight means another request holds the key and has not
	// completed. Clients may retry later.
	ErrDuplicateInFlight = errors.New("duplicate request in flight")
	// ErrStoreUnavailable wraps any failed store round-trip.
	ErrStoreUnavailable = errors.New("idempotency store unavailable")
	// ErrOutcomeMismatch is returned when completing a key that already
	// holds a different outcome.
	ErrOutcomeMismatch = errors.New("idempotency key already completed with a different outcome")
	// ErrNotClaimed is returned when completing a key that was never claimed.
	ErrNotClaimed = errors.New("idempotency key not claimed")
	// ErrInvalidKey rejects empty or oversized keys.
	ErrInvalidKey = errors.New("invalid idempotency key")
	// ErrKeyReused means a stored key was presented with a different request.
	ErrKeyReused = errors.New("idempotency key reused with a different request")
)

// Request identifies one keyed write.
type Request struct {
	// Key is the client supplied key.
	Key string
	// Scope partitions keys per caller. Equal keys in different scopes are
	// unrelated.
	Scope string
	// Hash fingerprints the request. Empty disables the reuse check.
	Hash string
}

// StorageKey is the key the Store sees for this request.
func (r Request) StorageKey() string {
	return StorageKey(r.Scope, r.Key)
}

// StorageKey joins scope and key. The length prefix keeps a scope that
// contains the separator from colliding with another scope.
func StorageKey(scope, key string) string {
	if scope == "" {
		return key
	}
	return fmt.Sprintf("%d:%s:%s", len(scope), scope, key)
}

// Record is the persisted state of one key.
type Record struct {
	Key         string
	Status      Status
	RequestHash string
	StatusCode  int
	Fingerprint string
	Body        []byte
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Outcome is the response produced by the request that won the claim.
type Outcome struct {
	StatusCode  int
	Fingerprint string
	Body        []byte
}

// Store persists idempotency records.
type Store interface {
	// Claim inserts a pending record carrying requestHash if none exists. It
	// returns true only to the caller whose insert took effect.
	Claim(ctx context.Context, key, requestHash string) (bool, error)
	// Lookup returns the record for key, or nil when absent.
	Lookup(ctx context.Context, key string) (*Record, error)
	// Complete moves a pending record to completed. Repeating the call with
	// the same fingerprint is a no-op.
	Complete(ctx context.Context, key string, outcome Outcome) error
}

// Maintainer exposes the explicit operator actions on stored keys. Nothing
// in the request path calls these.
type Maintainer interface {
	// Release deletes a stranded pending record so the key can be reused.
	Release(ctx context.Context, key string) (bool, error)
	// Sweep deletes completed records finished before the cutoff.
	Sweep(ctx context.Context, completedBefore time.Time) (int64, error)
}

// ValidateKey checks the client supplied key.
func ValidateKey(key string) error {
	if key == "" || len(key) > MaxKeyLength {
		return ErrInvalidKey
	}
	return nil
}
