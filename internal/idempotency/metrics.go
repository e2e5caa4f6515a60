package idempotency

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Decision labels the path a keyed request took.
type Decision string

const (
	DecisionProceed   Decision = "proceed"
	DecisionReplay    Decision = "replay"
	DecisionConflict  Decision = "conflict"
	DecisionAbandoned Decision = "abandoned"
	DecisionReused    Decision = "reused"
)

type Metrics struct {
	decisionsTotal metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.decisionsTotal, err = meter.Int64Counter(
		"idempotency_decisions_total",
		metric.WithDescription("Keyed write requests by coordinator decision"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create idempotency_decisions_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordDecision(ctx context.Context, decision Decision) {
	if m == nil {
		return
	}
	m.decisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", string(decision)),
	))
}
