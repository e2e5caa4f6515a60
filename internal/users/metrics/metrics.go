package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	writesTotal        metric.Int64Counter
	membershipPageSize metric.Int64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.writesTotal, err = meter.Int64Counter(
		"users_writes_total",
		metric.WithDescription("User account and membership writes by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create users_writes_total counter: %w", err)
	}

	m.membershipPageSize, err = meter.Int64Histogram(
		"users_membership_page_size",
		metric.WithDescription("Engagements returned per user membership page"),
		metric.WithUnit("{engagement}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create users_membership_page_size histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordWrite(ctx context.Context, operation string, err error) {
	if m == nil {
		return
	}
	m.writesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status(err)),
	))
}

func (m *Metrics) RecordMembershipPage(ctx context.Context, items int, hasMore bool) {
	if m == nil {
		return
	}
	m.membershipPageSize.Record(ctx, int64(items), metric.WithAttributes(
		attribute.Bool("has_more", hasMore),
	))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
