package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordWrite(ctx, "enroll", nil)
	m.RecordWrite(ctx, "issue_task", errors.New("boom"))
	m.RecordCheckIn(ctx, nil)
	m.RecordCheckIn(ctx, nil)
	m.RecordHistoryPage(ctx, 4, true)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	got := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			got[metric.Name] = metric
		}
	}

	writes, ok := got["agents_writes_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := map[string]int64{}
	for _, dp := range writes.DataPoints {
		op, _ := dp.Attributes.Value(attribute.Key("operation"))
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		counts[op.AsString()+"/"+status.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"enroll/success": 1, "issue_task/error": 1}, counts)

	checkIns, ok := got["agents_check_ins_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, checkIns.DataPoints, 1)
	assert.Equal(t, int64(2), checkIns.DataPoints[0].Value)

	pages, ok := got["agents_task_history_page_size"].Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, pages.DataPoints, 1)
	assert.Equal(t, int64(4), pages.DataPoints[0].Sum)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordWrite(context.Background(), "enroll", nil)
	m.RecordCheckIn(context.Background(), nil)
	m.RecordHistoryPage(context.Background(), 1, false)
}
