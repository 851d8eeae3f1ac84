package kaio

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks submission, completion and latency statistics for an engine
type Metrics struct {
	// Completed requests per direction
	ReadOps  atomic.Uint64
	WriteOps atomic.Uint64
	SyncOps  atomic.Uint64 // fsync and fdatasync
	TrimOps  atomic.Uint64

	// Byte counters (successful transfers only)
	ReadBytes  atomic.Uint64
	WriteBytes atomic.Uint64
	TrimBytes  atomic.Uint64

	// Error counters
	ReadErrors  atomic.Uint64
	WriteErrors atomic.Uint64
	SyncErrors  atomic.Uint64
	TrimErrors  atomic.Uint64

	// Submission path
	SubmitCalls     atomic.Uint64 // io_submit invocations
	Submitted       atomic.Uint64 // descriptors accepted by the context
	ZeroSubmits     atomic.Uint64 // submits that made no progress
	WouldBlock      atomic.Uint64 // EAGAIN from submit
	OutOfMemory     atomic.Uint64 // ENOMEM from submit
	InlineCompleted atomic.Uint64 // sync and trim completed without the ring

	// Completion path
	RingReaped     atomic.Uint64 // completions read from the shared ring
	SyscallReaped  atomic.Uint64 // completions returned by io_getevents
	ShortTransfers atomic.Uint64

	// Queue statistics
	QueueDepthTotal atomic.Uint64 // Cumulative queue depth samples
	QueueDepthCount atomic.Uint64 // Number of queue depth measurements
	MaxQueueDepth   atomic.Uint32 // Maximum observed queue depth

	// Performance tracking
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Each bucket[i] contains the count of operations with latency <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // UnixNano
	StopTime  atomic.Int64 // UnixNano
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRead records a completed read
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWrite records a completed write
func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordSync records an inline sync or datasync
func (m *Metrics) RecordSync(latencyNs uint64, success bool) {
	m.SyncOps.Add(1)
	m.InlineCompleted.Add(1)
	if !success {
		m.SyncErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordTrim records an inline trim. A trim counts as submitted and
// completed at once.
func (m *Metrics) RecordTrim(bytes uint64, latencyNs uint64, success bool) {
	m.TrimOps.Add(1)
	m.Submitted.Add(1)
	m.InlineCompleted.Add(1)
	if success {
		m.TrimBytes.Add(bytes)
	} else {
		m.TrimErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordSubmit records one submit call that accepted n descriptors
func (m *Metrics) RecordSubmit(n int) {
	m.SubmitCalls.Add(1)
	if n > 0 {
		m.Submitted.Add(uint64(n))
	} else {
		m.ZeroSubmits.Add(1)
	}
}

// RecordReap records n completions and where they came from
func (m *Metrics) RecordReap(n int, fromRing bool) {
	if fromRing {
		m.RingReaped.Add(uint64(n))
	} else {
		m.SyscallReaped.Add(uint64(n))
	}
}

// RecordQueueDepth records current queue depth for statistics
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)

	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the engine as stopped
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics with derived rates
type MetricsSnapshot struct {
	ReadOps  uint64
	WriteOps uint64
	SyncOps  uint64
	TrimOps  uint64

	ReadBytes  uint64
	WriteBytes uint64
	TrimBytes  uint64

	ReadErrors  uint64
	WriteErrors uint64
	SyncErrors  uint64
	TrimErrors  uint64

	SubmitCalls     uint64
	Submitted       uint64
	ZeroSubmits     uint64
	WouldBlock      uint64
	OutOfMemory     uint64
	InlineCompleted uint64
	RingReaped      uint64
	SyscallReaped   uint64
	ShortTransfers  uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	ReadIOPS       float64
	WriteIOPS      float64
	ReadBandwidth  float64 // Bytes per second
	WriteBandwidth float64
	AvgBatch       float64 // descriptors per submit call
	TotalOps       uint64
	TotalBytes     uint64
	ErrorRate      float64 // Percentage of failed operations
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadOps:         m.ReadOps.Load(),
		WriteOps:        m.WriteOps.Load(),
		SyncOps:         m.SyncOps.Load(),
		TrimOps:         m.TrimOps.Load(),
		ReadBytes:       m.ReadBytes.Load(),
		WriteBytes:      m.WriteBytes.Load(),
		TrimBytes:       m.TrimBytes.Load(),
		ReadErrors:      m.ReadErrors.Load(),
		WriteErrors:     m.WriteErrors.Load(),
		SyncErrors:      m.SyncErrors.Load(),
		TrimErrors:      m.TrimErrors.Load(),
		SubmitCalls:     m.SubmitCalls.Load(),
		Submitted:       m.Submitted.Load(),
		ZeroSubmits:     m.ZeroSubmits.Load(),
		WouldBlock:      m.WouldBlock.Load(),
		OutOfMemory:     m.OutOfMemory.Load(),
		InlineCompleted: m.InlineCompleted.Load(),
		RingReaped:      m.RingReaped.Load(),
		SyscallReaped:   m.SyscallReaped.Load(),
		ShortTransfers:  m.ShortTransfers.Load(),
		MaxQueueDepth:   m.MaxQueueDepth.Load(),
	}

	snap.TotalOps = snap.ReadOps + snap.WriteOps + snap.SyncOps + snap.TrimOps
	snap.TotalBytes = snap.ReadBytes + snap.WriteBytes + snap.TrimBytes

	if n := m.QueueDepthCount.Load(); n > 0 {
		snap.AvgQueueDepth = float64(m.QueueDepthTotal.Load()) / float64(n)
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}

	if snap.SubmitCalls > 0 {
		batched := snap.Submitted - snap.TrimOps
		snap.AvgBatch = float64(batched) / float64(snap.SubmitCalls)
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.ReadIOPS = float64(snap.ReadOps) / uptimeSeconds
		snap.WriteIOPS = float64(snap.WriteOps) / uptimeSeconds
		snap.ReadBandwidth = float64(snap.ReadBytes) / uptimeSeconds
		snap.WriteBandwidth = float64(snap.WriteBytes) / uptimeSeconds
	}

	totalErrors := snap.ReadErrors + snap.WriteErrors + snap.SyncErrors + snap.TrimErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes every counter and restarts the uptime clock
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Uint64{
		&m.ReadOps, &m.WriteOps, &m.SyncOps, &m.TrimOps,
		&m.ReadBytes, &m.WriteBytes, &m.TrimBytes,
		&m.ReadErrors, &m.WriteErrors, &m.SyncErrors, &m.TrimErrors,
		&m.SubmitCalls, &m.Submitted, &m.ZeroSubmits, &m.WouldBlock, &m.OutOfMemory,
		&m.InlineCompleted, &m.RingReaped, &m.SyscallReaped, &m.ShortTransfers,
		&m.QueueDepthTotal, &m.QueueDepthCount, &m.TotalLatencyNs, &m.OpCount,
	} {
		c.Store(0)
	}
	m.MaxQueueDepth.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer receives engine events. Implementations must be cheap; they run
// on the submit and reap paths.
type Observer interface {
	// ObserveCompletion is called once per finished request
	ObserveCompletion(dir Direction, bytes uint64, latencyNs uint64, success bool)

	// ObserveSubmit is called after every submit call with the accepted count
	ObserveSubmit(n int)

	// ObserveBackpressure is called when submit reports EAGAIN or ENOMEM
	ObserveBackpressure(outOfMemory bool)

	// ObserveReap is called with the number of completions gathered
	ObserveReap(n int, fromRing bool)

	// ObserveShortTransfer is called when fewer bytes moved than requested
	ObserveShortTransfer()

	// ObserveQueueDepth is called with the in-flight count after each commit
	ObserveQueueDepth(depth uint32)
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveCompletion(Direction, uint64, uint64, bool) {}
func (NoOpObserver) ObserveSubmit(int)                                 {}
func (NoOpObserver) ObserveBackpressure(bool)                          {}
func (NoOpObserver) ObserveReap(int, bool)                             {}
func (NoOpObserver) ObserveShortTransfer()                             {}
func (NoOpObserver) ObserveQueueDepth(uint32)                          {}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveCompletion(dir Direction, bytes uint64, latencyNs uint64, success bool) {
	switch dir {
	case Read:
		o.metrics.RecordRead(bytes, latencyNs, success)
	case Write:
		o.metrics.RecordWrite(bytes, latencyNs, success)
	case Sync, DataSync:
		o.metrics.RecordSync(latencyNs, success)
	case Trim:
		o.metrics.RecordTrim(bytes, latencyNs, success)
	}
}

func (o *MetricsObserver) ObserveSubmit(n int) {
	o.metrics.RecordSubmit(n)
}

func (o *MetricsObserver) ObserveBackpressure(outOfMemory bool) {
	if outOfMemory {
		o.metrics.OutOfMemory.Add(1)
	} else {
		o.metrics.WouldBlock.Add(1)
	}
}

func (o *MetricsObserver) ObserveReap(n int, fromRing bool) {
	o.metrics.RecordReap(n, fromRing)
}

func (o *MetricsObserver) ObserveShortTransfer() {
	o.metrics.ShortTransfers.Add(1)
}

func (o *MetricsObserver) ObserveQueueDepth(depth uint32) {
	o.metrics.RecordQueueDepth(depth)
}

// Compile-time interface check
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
