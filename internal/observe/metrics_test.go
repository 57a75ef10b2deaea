package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

// sumValue returns the value of the data point carrying key=value, or the
// first data point when key is empty.
func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	t.Fatalf("metric %q: no data point with %s=%s", name, key, value)
	return 0
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"vocalbooth.frame.duration", m.FrameDuration},
		{"vocalbooth.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.0012)
		tc.h.Record(ctx, 0.0034)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordFrames(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrames(ctx, FrameStats{Frames: 10, DeadlineMisses: 1, Corrections: 7, ClampedSamples: 3, VoiceActive: 4})
	m.RecordFrames(ctx, FrameStats{Frames: 5, Corrections: 2, DetectorErrors: 2})

	rm := collect(t, reader)

	tests := []struct {
		name string
		want int64
	}{
		{"vocalbooth.frames", 15},
		{"vocalbooth.frame.deadline_misses", 1},
		{"vocalbooth.corrections", 9},
		{"vocalbooth.mixer.clamped_samples", 3},
		{"vocalbooth.voice_active_frames", 4},
		{"vocalbooth.detector.errors", 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := sumValue(t, rm, tc.name, "", ""); got != tc.want {
				t.Errorf("counter value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRecordFrames_ZeroBatchRecordsNothing(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordFrames(context.Background(), FrameStats{})

	rm := collect(t, reader)
	if met := findMetric(rm, "vocalbooth.frames"); met != nil {
		if sum, ok := met.Data.(metricdata.Sum[int64]); ok && len(sum.DataPoints) > 0 {
			t.Errorf("empty batch produced data points: %+v", sum.DataPoints)
		}
	}
}

func TestRecordParamUpdate(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordParamUpdate(ctx, "file", 3, 0)
	m.RecordParamUpdate(ctx, "file", 1, 2)
	m.RecordParamUpdate(ctx, "websocket", 0, 1)

	rm := collect(t, reader)
	met := findMetric(rm, "vocalbooth.param.updates")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}

	got := map[string]int64{}
	for _, dp := range sum.DataPoints {
		source, _ := dp.Attributes.Value(attribute.Key("source"))
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		got[source.AsString()+"/"+status.AsString()] = dp.Value
	}
	want := map[string]int64{"file/applied": 4, "file/rejected": 2, "websocket/rejected": 1}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %d, want %d", k, got[k], v)
		}
	}
	if _, ok := got["websocket/applied"]; ok {
		t.Error("zero applied count produced a data point")
	}
}

func TestRecordBreakerTrips(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBreakerTrips(ctx, "pitch", 2)
	m.RecordBreakerTrips(ctx, "pitch", 0)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "vocalbooth.breaker.trips", "breaker", "pitch"); got != 2 {
		t.Errorf("trips = %d, want 2", got)
	}
}

func TestLiveClientsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	// UpDownCounters are additive.
	m.LiveClients.Add(ctx, 1)
	m.LiveClients.Add(ctx, 1)
	m.LiveClients.Add(ctx, -1)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "vocalbooth.live.clients", "", ""); got != 1 {
		t.Errorf("clients = %d, want 1", got)
	}
}

func TestNoiseLevelGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordNoiseLevel(ctx, 0.02)
	m.RecordNoiseLevel(ctx, 0.004)

	rm := collect(t, reader)
	met := findMetric(rm, "vocalbooth.noise_level")
	if met == nil {
		t.Fatal("metric not found")
	}
	g, ok := met.Data.(metricdata.Gauge[float64])
	if !ok {
		t.Fatalf("metric is %T, want gauge", met.Data)
	}
	if len(g.DataPoints) == 0 || g.DataPoints[0].Value != 0.004 {
		t.Errorf("gauge = %+v, want last value 0.004", g.DataPoints)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
