package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	engagementsCreatedTotal    metric.Int64Counter
	engagementCreationDuration metric.Float64Histogram
	listPageSize               metric.Int64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.engagementsCreatedTotal, err = meter.Int64Counter(
		"engagements_created_total",
		metric.WithDescription("Total number of engagements created"),
		metric.WithUnit("{engagement}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create engagements_created_total counter: %w", err)
	}

	m.engagementCreationDuration, err = meter.Float64Histogram(
		"engagement_creation_duration_seconds",
		metric.WithDescription("Duration of engagement creation operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create engagement_creation_duration histogram: %w", err)
	}

	m.listPageSize, err = meter.Int64Histogram(
		"engagement_list_page_size",
		metric.WithDescription("Items returned per engagement list page"),
		metric.WithUnit("{engagement}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create engagement_list_page_size histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordEngagementCreated(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.engagementsCreatedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordEngagementCreationDuration(ctx context.Context, durationSeconds float64) {
	if m == nil {
		return
	}
	m.engagementCreationDuration.Record(ctx, durationSeconds)
}

func (m *Metrics) RecordListPage(ctx context.Context, items int, hasMore bool) {
	if m == nil {
		return
	}
	m.listPageSize.Record(ctx, int64(items), metric.WithAttributes(
		attribute.Bool("has_more", hasMore),
	))
}
