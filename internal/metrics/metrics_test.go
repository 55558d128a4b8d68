package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementCounter(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter("relay.enqueued", nil, "Envelopes accepted")
	registry.IncrementCounter("relay.enqueued", nil, "Envelopes accepted")

	snap := registry.GetAllMetrics()
	counter, ok := snap.Counters["relay.enqueued"]
	require.True(t, ok)
	assert.Equal(t, float64(2), counter.Value)
	assert.Equal(t, Counter, counter.Type)
	assert.Equal(t, "Envelopes accepted", counter.Description)
}

func TestIncrementCounterWithLabels(t *testing.T) {
	registry := NewRegistry()
	labels := map[string]string{"kind": "photo"}

	registry.IncrementCounter("relay.delivered", labels, "Envelopes delivered")
	registry.IncrementCounter("relay.delivered", labels, "Envelopes delivered")
	registry.IncrementCounter("relay.delivered", map[string]string{"kind": "text"}, "Envelopes delivered")

	snap := registry.GetAllMetrics()
	photo, ok := snap.Counters["relay.delivered_kind:photo"]
	require.True(t, ok)
	assert.Equal(t, float64(2), photo.Value)
	assert.Equal(t, "photo", photo.Labels["kind"])

	text, ok := snap.Counters["relay.delivered_kind:text"]
	require.True(t, ok)
	assert.Equal(t, float64(1), text.Value)
}

func TestAddToCounter(t *testing.T) {
	registry := NewRegistry()

	registry.AddToCounter("relay.bytes", 5.5, nil, "Bytes relayed")
	registry.AddToCounter("relay.bytes", 2.5, nil, "Bytes relayed")

	snap := registry.GetAllMetrics()
	counter, ok := snap.Counters["relay.bytes"]
	require.True(t, ok)
	assert.Equal(t, float64(8), counter.Value)
}

func TestRecordTimer(t *testing.T) {
	registry := NewRegistry()

	registry.RecordTimer("pipeline.process", 10*time.Millisecond, nil, "Envelope processing time")
	registry.RecordTimer("pipeline.process", 30*time.Millisecond, nil, "Envelope processing time")
	registry.RecordTimer("pipeline.process", 20*time.Millisecond, nil, "Envelope processing time")

	snap := registry.GetAllMetrics()
	timer, ok := snap.Timers["pipeline.process"]
	require.True(t, ok)
	assert.Equal(t, int64(3), timer.Count)
	assert.Equal(t, float64(60), timer.Sum)
	assert.Equal(t, float64(10), timer.Min)
	assert.Equal(t, float64(30), timer.Max)
	assert.Equal(t, float64(20), timer.Average)
}

func TestRecordTimerPercentiles(t *testing.T) {
	registry := NewRegistry()

	// Percentiles appear once ten samples have been recorded
	for i := 1; i <= 9; i++ {
		registry.RecordTimer("gateway.request", time.Duration(i)*time.Millisecond, nil, "")
	}
	snap := registry.GetAllMetrics()
	require.Contains(t, snap.Timers, "gateway.request")
	assert.Zero(t, snap.Timers["gateway.request"].P95)

	registry.RecordTimer("gateway.request", 10*time.Millisecond, nil, "")
	snap = registry.GetAllMetrics()
	timer := snap.Timers["gateway.request"]
	assert.Greater(t, timer.P95, float64(0))
	assert.GreaterOrEqual(t, timer.P99, timer.P95)
	assert.LessOrEqual(t, timer.P99, timer.Max)
}

func TestSetGauge(t *testing.T) {
	registry := NewRegistry()

	registry.SetGauge("relay.queue.depth", 7, nil, "Queue depth")
	registry.SetGauge("relay.queue.depth", 3, nil, "Queue depth")

	snap := registry.GetAllMetrics()
	gauge, ok := snap.Gauges["relay.queue.depth"]
	require.True(t, ok)
	assert.Equal(t, Gauge, gauge.Type)
	assert.Equal(t, float64(3), gauge.Value)
}

func TestSnapshotMetadata(t *testing.T) {
	registry := NewRegistry()
	registry.IncrementCounter("relay.enqueued", nil, "")

	snap := registry.GetAllMetrics()
	assert.GreaterOrEqual(t, snap.UptimeMs, int64(0))
	assert.NotZero(t, snap.Timestamp)
	assert.Empty(t, snap.Timers)
	assert.Empty(t, snap.Gauges)
}

func TestGlobalRegistryHelpers(t *testing.T) {
	IncrementCounter("test.global.counter", nil, "Global counter")
	AddToCounter("test.global.counter", 2, nil, "Global counter")
	RecordTimer("test.global.timer", 5*time.Millisecond, nil, "Global timer")
	SetGauge("test.global.gauge", 42, nil, "Global gauge")

	snap := GetAllMetrics()
	require.Contains(t, snap.Counters, "test.global.counter")
	assert.GreaterOrEqual(t, snap.Counters["test.global.counter"].Value, float64(3))
	assert.Contains(t, snap.Timers, "test.global.timer")
	require.Contains(t, snap.Gauges, "test.global.gauge")
	assert.Equal(t, float64(42), snap.Gauges["test.global.gauge"].Value)
	assert.Same(t, globalRegistry, GetRegistry())
}
