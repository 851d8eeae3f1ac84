// Package aioctx provides the kernel asynchronous I/O context the engine
// submits descriptors to and reaps completions from.
package aioctx

import (
	"time"

	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

// Context is an asynchronous I/O context. Errors returned by its methods
// are unix.Errno values so callers can branch on EAGAIN, EINTR and friends.
type Context interface {
	// Submit hands a contiguous batch to the kernel and returns how many
	// descriptors were accepted.
	Submit(batch []*uapi.IOCB) (int, error)

	// GetEvents waits until at least minNr completions are available (or
	// timeout expires) and copies up to nr of them into events. A negative
	// timeout waits indefinitely.
	GetEvents(minNr, nr int, events []uapi.IOEvent, timeout time.Duration) (int, error)

	// Cancel attempts to cancel an in-flight descriptor.
	Cancel(iocb *uapi.IOCB, res *uapi.IOEvent) error

	// Destroy tears down the context, waiting for in-flight I/O.
	Destroy() error
}

// RingProvider is implemented by contexts whose completion ring is mapped
// into user space.
type RingProvider interface {
	SharedRing() *SharedRing
}

// Config describes the context to create.
type Config struct {
	// Depth is the number of events the context must hold.
	Depth uint32

	// Flags is a mask of uapi.IOCTX_FLAG_* bits.
	Flags uint32

	// IOCBs is the user-owned descriptor array, required with
	// IOCTX_FLAG_USERIOCB. It must stay mapped for the context lifetime.
	IOCBs []uapi.IOCB
}

// Features reports which optional behaviors a created context honors.
type Features struct {
	Extended   bool // created through io_setup2
	Polled     bool
	UserIOCBs  bool
	FixedBufs  bool
	SharedRing bool
}
