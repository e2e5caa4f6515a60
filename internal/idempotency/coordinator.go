package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Coordinator implements the request protocol on top of a Store.
type Coordinator struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
}

// NewCoordinator wires a Coordinator. metrics may be nil.
func NewCoordinator(store Store, logger *slog.Logger, metrics *Metrics) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, logger: logger, metrics: metrics}
}

// Begin decides how a keyed request proceeds.
//
// A non-nil record means the key already completed and the caller must
// replay it without running business logic. (nil, nil) means the caller won
// the claim and must run business logic once, then call Finish.
// ErrDuplicateInFlight means another request holds the key. ErrKeyReused
// means the key belongs to a different request.
func (c *Coordinator) Begin(ctx context.Context, req Request) (*Record, error) {
	if err := ValidateKey(req.Key); err != nil {
		return nil, err
	}
	key := req.StorageKey()

	rec, err := c.store.Lookup(ctx, key)
	if err != nil {
		return nil, unavailable("lookup", err)
	}
	if rec != nil {
		if err := c.checkReuse(ctx, req, rec); err != nil {
			return nil, err
		}
		if rec.Status == StatusCompleted {
			c.metrics.RecordDecision(ctx, DecisionReplay)
			c.logger.InfoContext(ctx, "replaying idempotent response", "idempotency_key", req.Key)
			return rec, nil
		}
	}

	won, err := c.store.Claim(ctx, key, req.Hash)
	if err != nil {
		return nil, unavailable("claim", err)
	}
	if won {
		c.metrics.RecordDecision(ctx, DecisionProceed)
		return nil, nil
	}

	// The holder may have completed between our lookup and claim.
	rec, err = c.store.Lookup(ctx, key)
	if err != nil {
		return nil, unavailable("lookup", err)
	}
	if rec != nil {
		if err := c.checkReuse(ctx, req, rec); err != nil {
			return nil, err
		}
		if rec.Status == StatusCompleted {
			c.metrics.RecordDecision(ctx, DecisionReplay)
			return rec, nil
		}
	}

	c.metrics.RecordDecision(ctx, DecisionConflict)
	c.logger.WarnContext(ctx, "idempotency key in flight", "idempotency_key", req.Key)
	return nil, ErrDuplicateInFlight
}

// Finish records the outcome for a request won through Begin.
func (c *Coordinator) Finish(ctx context.Context, req Request, outcome Outcome) error {
	err := c.store.Complete(ctx, req.StorageKey(), outcome)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOutcomeMismatch), errors.Is(err, ErrNotClaimed):
		c.logger.ErrorContext(ctx, "failed to complete idempotency key", "idempotency_key", req.Key, "error", err)
		return err
	default:
		return unavailable("complete", err)
	}
}

// Abandon logs a key left pending because business logic failed after the
// claim. The key stays pending until an operator releases it.
func (c *Coordinator) Abandon(ctx context.Context, req Request, cause error) {
	c.metrics.RecordDecision(ctx, DecisionAbandoned)
	c.logger.WarnContext(ctx, "idempotency key left pending after failed request",
		"idempotency_key", req.Key,
		"error", cause,
	)
}

// checkReuse rejects a request whose hash differs from the one the key was
// claimed with. Records claimed without a hash accept any request.
func (c *Coordinator) checkReuse(ctx context.Context, req Request, rec *Record) error {
	if req.Hash == "" || rec.RequestHash == "" || req.Hash == rec.RequestHash {
		return nil
	}
	c.metrics.RecordDecision(ctx, DecisionReused)
	c.logger.WarnContext(ctx, "idempotency key reused with a different request", "idempotency_key", req.Key)
	return ErrKeyReused
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
