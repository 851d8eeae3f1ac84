//go:build linux

package aioctx

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-kaio/internal/logging"
	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

// Native is a Linux native AIO context.
type Native struct {
	id       uintptr
	cfg      Config
	features Features
	ring     *SharedRing
	// user-owned mode submits slot indices in place of iocb addresses
	indices []uintptr
}

// NewNative creates a native AIO context. When cfg.Flags is non-zero the
// extended setup call is tried first; if it is unavailable the plain
// io_setup fallback cannot honor the flags and unix.EOPNOTSUPP is returned.
func NewNative(cfg Config) (*Native, error) {
	logger := logging.Default()
	if cfg.Depth == 0 {
		return nil, unix.EINVAL
	}
	if cfg.Flags&uapi.IOCTX_FLAG_USERIOCB != 0 && len(cfg.IOCBs) < int(cfg.Depth) {
		return nil, unix.EINVAL
	}

	c := &Native{cfg: cfg}
	if err := c.setup2(); err == nil {
		c.features.Extended = true
		c.features.Polled = cfg.Flags&uapi.IOCTX_FLAG_IOPOLL != 0
		c.features.UserIOCBs = cfg.Flags&uapi.IOCTX_FLAG_USERIOCB != 0
		c.features.FixedBufs = cfg.Flags&uapi.IOCTX_FLAG_FIXEDBUFS != 0
		if c.features.UserIOCBs {
			c.indices = make([]uintptr, cfg.Depth)
		}
	} else {
		if cfg.Flags != 0 {
			logger.Warn("io_setup2 unavailable, cannot honor context flags", "flags", cfg.Flags, "error", err)
			return nil, unix.EOPNOTSUPP
		}
		var id uintptr
		if _, _, e := unix.Syscall(unix.SYS_IO_SETUP, uintptr(cfg.Depth), uintptr(unsafe.Pointer(&id)), 0); e != 0 {
			logger.Error("io_setup failed", "depth", cfg.Depth, "errno", e)
			return nil, e
		}
		c.id = id
	}

	c.ring = NewSharedRing(unsafe.Pointer(c.id))
	c.features.SharedRing = c.ring.Recognized()
	logger.Debug("created aio context", "depth", cfg.Depth, "flags", cfg.Flags, "shared_ring", c.features.SharedRing)
	return c, nil
}

func (c *Native) setup2() error {
	if sysIOSetup2 == 0 || c.cfg.Flags == 0 {
		return unix.ENOSYS
	}
	var iocbs uintptr
	if len(c.cfg.IOCBs) > 0 {
		iocbs = uintptr(unsafe.Pointer(&c.cfg.IOCBs[0]))
	}
	var id uintptr
	_, _, e := unix.Syscall6(sysIOSetup2, uintptr(c.cfg.Depth), uintptr(c.cfg.Flags), iocbs, uintptr(unsafe.Pointer(&id)), 0, 0)
	if e != 0 {
		return e
	}
	c.id = id
	return nil
}

// Features reports what the context was created with.
func (c *Native) Features() Features {
	return c.features
}

// SharedRing returns the kernel-mapped completion ring.
func (c *Native) SharedRing() *SharedRing {
	return c.ring
}

func (c *Native) Submit(batch []*uapi.IOCB) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	var n uintptr
	var e unix.Errno
	if c.indices != nil {
		for i, iocb := range batch {
			c.indices[i] = uintptr(iocb.Data)
		}
		n, _, e = unix.Syscall(unix.SYS_IO_SUBMIT, c.id, uintptr(len(batch)), uintptr(unsafe.Pointer(&c.indices[0])))
	} else {
		n, _, e = unix.Syscall(unix.SYS_IO_SUBMIT, c.id, uintptr(len(batch)), uintptr(unsafe.Pointer(unsafe.SliceData(batch))))
	}
	if e != 0 {
		return 0, e
	}
	return int(n), nil
}

func (c *Native) GetEvents(minNr, nr int, events []uapi.IOEvent, timeout time.Duration) (int, error) {
	if nr > len(events) {
		nr = len(events)
	}
	if nr == 0 {
		return 0, nil
	}
	var tsp uintptr
	var ts unix.Timespec
	if timeout >= 0 {
		ts = unix.NsecToTimespec(timeout.Nanoseconds())
		tsp = uintptr(unsafe.Pointer(&ts))
	}
	n, _, e := unix.Syscall6(unix.SYS_IO_GETEVENTS, c.id, uintptr(minNr), uintptr(nr), uintptr(unsafe.Pointer(&events[0])), tsp, 0)
	if e != 0 {
		return 0, e
	}
	return int(n), nil
}

func (c *Native) Cancel(iocb *uapi.IOCB, res *uapi.IOEvent) error {
	_, _, e := unix.Syscall(unix.SYS_IO_CANCEL, c.id, uintptr(unsafe.Pointer(iocb)), uintptr(unsafe.Pointer(res)))
	if e != 0 {
		return e
	}
	return nil
}

func (c *Native) Destroy() error {
	if c.id == 0 {
		return nil
	}
	_, _, e := unix.Syscall(unix.SYS_IO_DESTROY, c.id, 0, 0)
	c.id = 0
	c.ring = nil
	if e != 0 {
		return e
	}
	return nil
}
