package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	agentWritesTotal metric.Int64Counter
	checkInsTotal    metric.Int64Counter
	historyPageSize  metric.Int64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.agentWritesTotal, err = meter.Int64Counter(
		"agents_writes_total",
		metric.WithDescription("Agent enrollments, uninstalls and task issues by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create agents_writes_total counter: %w", err)
	}

	m.checkInsTotal, err = meter.Int64Counter(
		"agents_check_ins_total",
		metric.WithDescription("Agent check-ins by outcome"),
		metric.WithUnit("{check_in}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create agents_check_ins_total counter: %w", err)
	}

	m.historyPageSize, err = meter.Int64Histogram(
		"agents_task_history_page_size",
		metric.WithDescription("Issued tasks returned per history page"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create agents_task_history_page_size histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordWrite(ctx context.Context, operation string, err error) {
	if m == nil {
		return
	}
	m.agentWritesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status(err)),
	))
}

// RecordCheckIn counts check-ins on their own series.
func (m *Metrics) RecordCheckIn(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.checkInsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status(err))))
}

func (m *Metrics) RecordHistoryPage(ctx context.Context, items int, hasMore bool) {
	if m == nil {
		return
	}
	m.historyPageSize.Record(ctx, int64(items), metric.WithAttributes(
		attribute.Bool("has_more", hasMore),
	))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
