// Package ring tracks occupancy of the fixed-capacity submission ring.
//
// The tracker only does index arithmetic. The caller owns the slot storage
// and stores its descriptor at the slot returned by Push.
package ring

// Tracker holds head/tail/queued counters over a fixed capacity.
// It is single-producer/single-consumer and not safe for concurrent use.
type Tracker struct {
	entries uint32
	mask    uint32
	pow2    bool
	head    uint32
	tail    uint32
	queued  uint32
}

// NewTracker returns a tracker with the given capacity. entries must be > 0.
func NewTracker(entries uint32) *Tracker {
	if entries == 0 {
		panic("ring: zero capacity")
	}
	t := &Tracker{entries: entries}
	if entries&(entries-1) == 0 {
		t.pow2 = true
		t.mask = entries - 1
	}
	return t
}

func (t *Tracker) inc(v, n uint32) uint32 {
	if t.pow2 {
		return (v + n) & t.mask
	}
	return (v + n) % t.entries
}

// Push reserves the slot at head. It returns false without touching head
// when the ring is full.
func (t *Tracker) Push() (slot uint32, ok bool) {
	if t.queued == t.entries {
		return 0, false
	}
	slot = t.head
	t.head = t.inc(t.head, 1)
	t.queued++
	return slot, true
}

// CommitRange returns the contiguous run of queued slots starting at tail.
// The run never wraps past the end of the ring.
func (t *Tracker) CommitRange() (start, n uint32) {
	n = t.queued
	if room := t.entries - t.tail; n > room {
		n = room
	}
	return t.tail, n
}

// Advance retires n submitted slots from the tail.
func (t *Tracker) Advance(n uint32) {
	if n > t.queued {
		panic("ring: advance past queued")
	}
	t.tail = t.inc(t.tail, n)
	t.queued -= n
}

func (t *Tracker) Entries() uint32 { return t.entries }
func (t *Tracker) Head() uint32    { return t.head }
func (t *Tracker) Tail() uint32    { return t.tail }
func (t *Tracker) Queued() uint32  { return t.queued }
func (t *Tracker) Full() bool      { return t.queued == t.entries }
func (t *Tracker) PowerOfTwo() bool {
	return t.pow2
}
