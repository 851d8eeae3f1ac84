package queue

import (
	"github.com/bytedance/gopkg/lang/mcache"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-kaio/internal/constants"
)

// GetBuffer returns a payload buffer of len size from the size-classed
// mcache pool. Capacity is rounded up to the next power of two.
// Caller must call PutBuffer when done.
func GetBuffer(size uint32) []byte {
	return mcache.Malloc(int(size))
}

// PutBuffer returns a buffer obtained from GetBuffer to the pool.
// Buffers whose capacity is not a power of two are ignored.
func PutBuffer(buf []byte) {
	c := cap(buf)
	if c == 0 || c&(c-1) != 0 {
		return
	}
	mcache.Free(buf)
}

// Arena is a page-aligned anonymous mapping carved into equal slots, one
// per ring entry. Page alignment makes the slots usable for O_DIRECT and
// keeps them unmoved for fixed-buffer registration.
type Arena struct {
	mem      []byte
	slotSize int
	slots    int
}

// NewArena maps slots*slotSize bytes. slotSize is rounded up to the
// buffer alignment.
func NewArena(slots, slotSize int) (*Arena, error) {
	if slots <= 0 || slotSize <= 0 {
		return nil, unix.EINVAL
	}
	align := constants.BufferAlignment
	slotSize = (slotSize + align - 1) &^ (align - 1)
	mem, err := unix.Mmap(-1, 0, slots*slotSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &Arena{mem: mem, slotSize: slotSize, slots: slots}, nil
}

// Slot returns the buffer for slot i, sliced to n bytes.
func (a *Arena) Slot(i, n int) []byte {
	base := i * a.slotSize
	if n > a.slotSize {
		n = a.slotSize
	}
	return a.mem[base : base+n : base+a.slotSize]
}

// SlotSize returns the aligned size of each slot.
func (a *Arena) SlotSize() int { return a.slotSize }

// Slots returns the number of slots.
func (a *Arena) Slots() int { return a.slots }

// Close unmaps the arena. Slots must not be used afterwards.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}
