package kaio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	assert.Zero(t, snap.TotalOps)

	m.RecordRead(1024, 1_000_000, true)
	m.RecordWrite(2048, 2_000_000, true)
	m.RecordRead(512, 500_000, false)

	snap = m.Snapshot()
	assert.Equal(t, uint64(2), snap.ReadOps)
	assert.Equal(t, uint64(1), snap.WriteOps)
	assert.Equal(t, uint64(3), snap.TotalOps)
	assert.Equal(t, uint64(1024), snap.ReadBytes, "failed reads move no bytes")
	assert.Equal(t, uint64(2048), snap.WriteBytes)
	assert.Equal(t, uint64(1), snap.ReadErrors)
	assert.InDelta(t, 100.0/3.0, snap.ErrorRate, 0.01)
	assert.Equal(t, uint64(1_166_666), snap.AvgLatencyNs)
}

func TestMetricsInline(t *testing.T) {
	m := NewMetrics()
	m.RecordSync(10, true)
	m.RecordSync(10, false)
	m.RecordTrim(4096, 10, true)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.SyncOps)
	assert.Equal(t, uint64(1), snap.SyncErrors)
	assert.Equal(t, uint64(1), snap.TrimOps)
	assert.Equal(t, uint64(4096), snap.TrimBytes)
	assert.Equal(t, uint64(3), snap.InlineCompleted)
	assert.Equal(t, uint64(1), snap.Submitted, "trims count as submitted")
}

func TestMetricsSubmitAndReap(t *testing.T) {
	m := NewMetrics()
	m.RecordSubmit(4)
	m.RecordSubmit(0)
	m.RecordSubmit(2)
	m.RecordReap(3, true)
	m.RecordReap(2, false)

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.SubmitCalls)
	assert.Equal(t, uint64(6), snap.Submitted)
	assert.Equal(t, uint64(1), snap.ZeroSubmits)
	assert.InDelta(t, 2.0, snap.AvgBatch, 0.001)
	assert.Equal(t, uint64(3), snap.RingReaped)
	assert.Equal(t, uint64(2), snap.SyscallReaped)
}

func TestMetricsQueueDepth(t *testing.T) {
	m := NewMetrics()
	for _, d := range []uint32{10, 20, 30, 15} {
		m.RecordQueueDepth(d)
	}

	snap := m.Snapshot()
	assert.Equal(t, uint32(30), snap.MaxQueueDepth)
	assert.InDelta(t, 18.75, snap.AvgQueueDepth, 0.001)
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics()
	m.RecordRead(1, 500, true)
	m.RecordRead(1, 50_000, true)
	m.RecordRead(1, 5_000_000, true)
	m.RecordRead(1, 500_000_000, true)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.LatencyHistogram[0])
	assert.Equal(t, uint64(1), snap.LatencyHistogram[1], "buckets are cumulative")
	assert.Equal(t, uint64(2), snap.LatencyHistogram[2])
	assert.Equal(t, uint64(4), snap.LatencyHistogram[7])
	assert.Positive(t, snap.LatencyP50Ns)
	assert.GreaterOrEqual(t, snap.LatencyP99Ns, snap.LatencyP50Ns)
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordWrite(4096, 1000, true)
	m.RecordSubmit(1)
	m.RecordQueueDepth(5)
	m.Stop()

	m.Reset()
	snap := m.Snapshot()
	assert.Zero(t, snap.TotalOps)
	assert.Zero(t, snap.SubmitCalls)
	assert.Zero(t, snap.MaxQueueDepth)
	assert.Zero(t, snap.LatencyHistogram[7])
	require.Zero(t, m.StopTime.Load())
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics()
	var obs Observer = NewMetricsObserver(m)

	obs.ObserveCompletion(Read, 100, 10, true)
	obs.ObserveCompletion(Write, 200, 10, false)
	obs.ObserveCompletion(DataSync, 0, 10, true)
	obs.ObserveCompletion(Trim, 300, 10, true)
	obs.ObserveSubmit(2)
	obs.ObserveBackpressure(false)
	obs.ObserveBackpressure(true)
	obs.ObserveReap(2, false)
	obs.ObserveShortTransfer()
	obs.ObserveQueueDepth(7)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.ReadOps)
	assert.Equal(t, uint64(1), snap.WriteErrors)
	assert.Equal(t, uint64(1), snap.SyncOps)
	assert.Equal(t, uint64(300), snap.TrimBytes)
	assert.Equal(t, uint64(1), snap.WouldBlock)
	assert.Equal(t, uint64(1), snap.OutOfMemory)
	assert.Equal(t, uint64(2), snap.SyscallReaped)
	assert.Equal(t, uint64(1), snap.ShortTransfers)
	assert.Equal(t, uint32(7), snap.MaxQueueDepth)
}

func TestNoOpObserver(t *testing.T) {
	var obs Observer = NoOpObserver{}
	assert.NotPanics(t, func() {
		obs.ObserveCompletion(Read, 1, 1, true)
		obs.ObserveSubmit(1)
		obs.ObserveBackpressure(true)
		obs.ObserveReap(1, true)
		obs.ObserveShortTransfer()
		obs.ObserveQueueDepth(1)
	})
}

func BenchmarkMetricsRecordRead(b *testing.B) {
	m := NewMetrics()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordRead(4096, 1000, true)
	}
}
