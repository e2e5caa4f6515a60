package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	tasksWrittenTotal metric.Int64Counter
	listPageSize      metric.Int64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.tasksWrittenTotal, err = meter.Int64Counter(
		"tasking_writes_total",
		metric.WithDescription("Tasking catalog writes by operation and outcome"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tasking_writes_total counter: %w", err)
	}

	m.listPageSize, err = meter.Int64Histogram(
		"tasking_list_page_size",
		metric.WithDescription("Items returned per tasking list page"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tasking_list_page_size histogram: %w", err)
	}

	return m, nil
}

// RecordWrite counts a create, update or delete.
func (m *Metrics) RecordWrite(ctx context.Context, operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.tasksWrittenTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordListPage(ctx context.Context, items int, hasMore bool) {
	if m == nil {
		return
	}
	m.listPageSize.Record(ctx, int64(items), metric.WithAttributes(
		attribute.Bool("has_more", hasMore),
	))
}
