package aioctx

import (
	"sync/atomic"
	"unsafe"

	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

const ioEventSize = unsafe.Sizeof(uapi.IOEvent{})

// SharedRing reads completions straight out of the kernel's aio_ring,
// which io_setup maps at the context id address.
type SharedRing struct {
	base unsafe.Pointer
}

// NewSharedRing wraps the ring mapped at base.
func NewSharedRing(base unsafe.Pointer) *SharedRing {
	return &SharedRing{base: base}
}

func (r *SharedRing) header() *uapi.AIORing {
	return (*uapi.AIORing)(r.base)
}

func (r *SharedRing) at(idx uint32) *uapi.IOEvent {
	h := r.header()
	return (*uapi.IOEvent)(unsafe.Add(r.base, uintptr(h.HeaderLength)+uintptr(idx)*ioEventSize))
}

// Recognized reports whether the ring layout is one user space may read.
func (r *SharedRing) Recognized() bool {
	if r == nil || r.base == nil {
		return false
	}
	h := r.header()
	return atomic.LoadUint32(&h.Magic) == uapi.AIO_RING_MAGIC &&
		h.IncompatFeatures == 0 &&
		h.HeaderLength >= uapi.AIO_RING_HEADER_SIZE &&
		h.Nr > 0
}

// Nr returns the number of event slots in the ring.
func (r *SharedRing) Nr() uint32 {
	return r.header().Nr
}

// Read copies ready completions into events without a system call and
// returns how many were copied. The shared head is published after every
// slot so the kernel can reuse it.
func (r *SharedRing) Read(events []uapi.IOEvent) int {
	h := r.header()
	n := 0
	for n < len(events) {
		head := atomic.LoadUint32(&h.Head)
		if head == atomic.LoadUint32(&h.Tail) {
			break
		}
		events[n] = *r.at(head)
		n++

		Mfence()
		atomic.StoreUint32(&h.Head, (head+1)%h.Nr)
	}
	return n
}

// Post appends ev at the tail the way the kernel does. It returns false if
// the ring is full. Only emulated rings use it.
func (r *SharedRing) Post(ev uapi.IOEvent) bool {
	h := r.header()
	tail := atomic.LoadUint32(&h.Tail)
	next := (tail + 1) % h.Nr
	if next == atomic.LoadUint32(&h.Head) {
		return false
	}
	*r.at(tail) = ev
	Mfence()
	atomic.StoreUint32(&h.Tail, next)
	return true
}

// Pending returns the number of completions between head and tail.
func (r *SharedRing) Pending() uint32 {
	h := r.header()
	head := atomic.LoadUint32(&h.Head)
	tail := atomic.LoadUint32(&h.Tail)
	return (tail + h.Nr - head) % h.Nr
}

// EmulatedRing allocates a ring in process memory laid out like the
// kernel's, for contexts that have no mapped ring of their own.
func EmulatedRing(nr uint32) *SharedRing {
	// one slot stays empty to tell full from empty
	nr++
	words := (uapi.AIO_RING_HEADER_SIZE + uintptr(nr)*ioEventSize) / 8
	mem := make([]uint64, words)
	r := NewSharedRing(unsafe.Pointer(&mem[0]))
	h := r.header()
	h.Nr = nr
	h.HeaderLength = uapi.AIO_RING_HEADER_SIZE
	h.Magic = uapi.AIO_RING_MAGIC
	return r
}
