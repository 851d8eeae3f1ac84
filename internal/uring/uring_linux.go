//go:build linux

// Package uring implements aioctx.Context on top of io_uring using
// pawelgaczynski/giouring.
package uring

import (
	"errors"
	"syscall"
	"time"
	"unsafe"

	"github.com/pawelgaczynski/giouring"

	"github.com/ehrlich-b/go-kaio/internal/aioctx"
	"github.com/ehrlich-b/go-kaio/internal/logging"
	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

// cancelTag marks completions of cancel requests, which are not reported.
const cancelTag = uint64(1) << 63

const fsyncDatasync = 1 // IORING_FSYNC_DATASYNC

// Context is an io_uring backed asynchronous I/O context.
// Descriptors are translated into SQEs at submit time and the iocb data
// field travels as the SQE user data.
type Context struct {
	ring  *giouring.Ring
	cfg   aioctx.Config
	fixed bool
	cqes  []*giouring.CompletionQueueEvent
}

// New creates an io_uring context of cfg.Depth entries. IOCTX_FLAG_IOPOLL
// maps to a polled ring and IOCTX_FLAG_FIXEDBUFS registers the buffers
// already filled into cfg.IOCBs.
func New(cfg aioctx.Config) (*Context, error) {
	logger := logging.Default()
	if cfg.Depth == 0 {
		return nil, syscall.EINVAL
	}

	var flags uint32
	if cfg.Flags&uapi.IOCTX_FLAG_IOPOLL != 0 {
		flags |= giouring.SetupIOPoll
	}

	ring := giouring.NewRing()
	if err := ring.QueueInit(cfg.Depth, flags); err != nil {
		logger.Error("io_uring setup failed", "entries", cfg.Depth, "error", err)
		return nil, err
	}

	c := &Context{
		ring: ring,
		cfg:  cfg,
		cqes: make([]*giouring.CompletionQueueEvent, cfg.Depth*2),
	}

	if cfg.Flags&uapi.IOCTX_FLAG_FIXEDBUFS != 0 {
		if len(cfg.IOCBs) < int(cfg.Depth) {
			ring.QueueExit()
			return nil, syscall.EINVAL
		}
		iovecs := make([]syscall.Iovec, cfg.Depth)
		for i := range iovecs {
			iovecs[i].Base = (*byte)(unsafe.Pointer(uintptr(cfg.IOCBs[i].Buf)))
			iovecs[i].SetLen(int(cfg.IOCBs[i].Nbytes))
		}
		if _, err := ring.RegisterBuffers(iovecs); err != nil {
			logger.Error("io_uring buffer registration failed", "error", err)
			ring.QueueExit()
			return nil, err
		}
		c.fixed = true
	}

	logger.Debug("created io_uring context", "entries", cfg.Depth, "flags", cfg.Flags)
	return c, nil
}

func (c *Context) prepare(sqe *giouring.SubmissionQueueEntry, iocb *uapi.IOCB) error {
	fd := int(iocb.FD)
	buf := uintptr(iocb.Buf)
	n := uint32(iocb.Nbytes)
	off := uint64(iocb.Offset)

	switch iocb.Opcode {
	case uapi.IOCB_CMD_PREAD:
		if c.fixed {
			sqe.PrepareReadFixed(fd, buf, n, off, int(iocb.Data))
		} else {
			sqe.PrepareRead(fd, buf, n, off)
		}
	case uapi.IOCB_CMD_PWRITE:
		if c.fixed {
			sqe.PrepareWriteFixed(fd, buf, n, off, int(iocb.Data))
		} else {
			sqe.PrepareWrite(fd, buf, n, off)
		}
	case uapi.IOCB_CMD_FSYNC:
		sqe.PrepareFsync(fd, 0)
	case uapi.IOCB_CMD_FDSYNC:
		sqe.PrepareFsync(fd, fsyncDatasync)
	case uapi.IOCB_CMD_NOOP:
		sqe.PrepareNop()
	default:
		return syscall.EINVAL
	}
	sqe.UserData = iocb.Data
	return nil
}

func (c *Context) Submit(batch []*uapi.IOCB) (int, error) {
	prepared := 0
	for _, iocb := range batch {
		sqe := c.ring.GetSQE()
		if sqe == nil {
			break
		}
		if err := c.prepare(sqe, iocb); err != nil {
			if prepared == 0 {
				return 0, err
			}
			break
		}
		prepared++
	}
	if prepared == 0 {
		return 0, syscall.EAGAIN
	}
	if _, err := c.ring.Submit(); err != nil {
		var errno syscall.Errno
		if errors.As(err, &errno) && errno != syscall.EAGAIN && errno != syscall.EBUSY {
			return 0, err
		}
		// SQEs stay on the submission queue and go out with the next enter
	}
	return prepared, nil
}

func (c *Context) GetEvents(minNr, nr int, events []uapi.IOEvent, timeout time.Duration) (int, error) {
	if nr > len(events) {
		nr = len(events)
	}
	if nr > len(c.cqes) {
		nr = len(c.cqes)
	}
	if nr == 0 {
		return 0, nil
	}

	if minNr > 0 {
		var ts *syscall.Timespec
		if timeout >= 0 {
			t := syscall.NsecToTimespec(timeout.Nanoseconds())
			ts = &t
		}
		if _, err := c.ring.WaitCQEs(uint32(minNr), ts, nil); err != nil {
			if !errors.Is(err, syscall.ETIME) {
				return 0, err
			}
		}
	}

	peeked := c.ring.PeekBatchCQE(c.cqes[:nr])
	n := 0
	for i := uint32(0); i < peeked; i++ {
		cqe := c.cqes[i]
		c.cqes[i] = nil
		if cqe.UserData&cancelTag != 0 {
			continue
		}
		events[n] = uapi.IOEvent{
			Data: cqe.UserData,
			Obj:  cqe.UserData,
			Res:  int64(cqe.Res),
		}
		n++
	}
	c.ring.CQAdvance(peeked)
	return n, nil
}

// Cancel queues an async cancel for iocb. The original request still
// completes, normally with -ECANCELED, so res is left untouched.
func (c *Context) Cancel(iocb *uapi.IOCB, res *uapi.IOEvent) error {
	sqe := c.ring.GetSQE()
	if sqe == nil {
		return syscall.EAGAIN
	}
	sqe.PrepareCancel64(iocb.Data, 0)
	sqe.UserData = cancelTag | iocb.Data
	if _, err := c.ring.Submit(); err != nil {
		return err
	}
	return nil
}

func (c *Context) Destroy() error {
	if c.ring == nil {
		return nil
	}
	c.ring.QueueExit()
	c.ring = nil
	return nil
}
