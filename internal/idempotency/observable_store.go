package idempotency

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/opsapi/internal/database"
	"github.com/dejobratic/opsapi/internal/telemetry"
)

// ObservableStore decorates a Store with spans and query metrics.
type ObservableStore struct {
	store   Store
	metrics *database.Metrics
}

func NewObservableStore(store Store, metrics *database.Metrics) *ObservableStore {
	return &ObservableStore{
		store:   store,
		metrics: metrics,
	}
}

func (s *ObservableStore) Claim(ctx context.Context, key, requestHash string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "IdempotencyStore.Claim")
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.String("operation", "claim"))

	start := time.Now()
	won, err := s.store.Claim(ctx, key, requestHash)
	s.metrics.RecordQuery(ctx, "claim_idempotency_key", time.Since(start).Seconds())

	if err != nil {
		s.metrics.RecordError(ctx, "claim_idempotency_key", err)
		telemetry.RecordSpanError(span, err)
		return false, err
	}

	telemetry.AddSpanAttributes(span, attribute.Bool("idempotency.won", won))
	telemetry.SetSpanSuccess(span)
	return won, nil
}

func (s *ObservableStore) Lookup(ctx context.Context, key string) (*Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "IdempotencyStore.Lookup")
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.String("operation", "lookup"))

	start := time.Now()
	rec, err := s.store.Lookup(ctx, key)
	s.metrics.RecordQuery(ctx, "lookup_idempotency_key", time.Since(start).Seconds())

	if err != nil {
		s.metrics.RecordError(ctx, "lookup_idempotency_key", err)
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	status := "absent"
	if rec != nil {
		status = string(rec.Status)
	}
	telemetry.AddSpanAttributes(span, attribute.String("idempotency.status", status))
	telemetry.SetSpanSuccess(span)
	return rec, nil
}

func (s *ObservableStore) Complete(ctx context.Context, key string, outcome Outcome) error {
	ctx, span := telemetry.StartSpan(ctx, "IdempotencyStore.Complete")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("operation", "complete"),
		attribute.Int("http.status_code", outcome.StatusCode),
		attribute.Int("response.size", len(outcome.Body)),
	)

	start := time.Now()
	err := s.store.Complete(ctx, key, outcome)
	s.metrics.RecordQuery(ctx, "complete_idempotency_key", time.Since(start).Seconds())

	if err != nil {
		s.metrics.RecordError(ctx, "complete_idempotency_key", err)
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
