package otel

import (
	"context"
	"sync"
	"testing"

	authpolicy "github.com/MrEthical07/authpolicy"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot authpolicy.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authpolicy.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := authpolicy.MetricsSnapshot{
		Counters:   make(map[authpolicy.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[authpolicy.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}
	return out
}

func TestExporterPublishesCountersAndBuckets(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: authpolicy.MetricsSnapshot{
			Counters: map[authpolicy.MetricID]uint64{
				authpolicy.MetricSessionCreated:   3,
				authpolicy.MetricLockoutTriggered: 1,
			},
			Histograms: map[authpolicy.MetricID][]uint64{
				authpolicy.MetricValidateSessionLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 2,
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("authpolicy-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	got := collect(t, reader)
	require.Equal(t, int64(3), got["authpolicy_session_created_total"])
	require.Equal(t, int64(1), got["authpolicy_lockout_triggered_total"])
	require.Equal(t, int64(2), got["authpolicy_audit_dropped_total"])
	require.Equal(t, int64(1), got["authpolicy_validate_session_latency_seconds_bucket_le_0_001"])
	require.Equal(t, int64(4), got["authpolicy_validate_session_latency_seconds_bucket_le_0_01"])
	require.Equal(t, int64(8), got["authpolicy_validate_session_latency_seconds_bucket_le_inf"])
	require.Equal(t, int64(8), got["authpolicy_validate_session_latency_seconds_count"])

	_, present := got["authpolicy_store_error_total"]
	require.False(t, present, "counters absent from the snapshot must not be observed")
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader()

	_, err := NewOTelExporterFromSource(provider.Meter("authpolicy-test"), nil)
	require.ErrorIs(t, err, ErrNilSource)

	_, err = NewOTelExporterFromSource(nil, &fakeSource{})
	require.ErrorIs(t, err, ErrNilMeter)

	_, err = NewOTelExporter(provider.Meter("authpolicy-test"), nil)
	require.ErrorIs(t, err, ErrNilSource)
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: authpolicy.MetricsSnapshot{
			Counters: map[authpolicy.MetricID]uint64{authpolicy.MetricLockedOut: 1},
		},
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("authpolicy-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[authpolicy.MetricLockedOut] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestCloseStopsObservation(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: authpolicy.MetricsSnapshot{
			Counters: map[authpolicy.MetricID]uint64{authpolicy.MetricSessionCreated: 5},
		},
	}
	exp, err := NewOTelExporterFromSource(provider.Meter("authpolicy-test"), src)
	require.NoError(t, err)
	require.NoError(t, exp.Close())

	got := collect(t, reader)
	_, present := got["authpolicy_session_created_total"]
	require.False(t, present)
}
