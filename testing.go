package kaio

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-kaio/internal/aioctx"
	"github.com/ehrlich-b/go-kaio/internal/interfaces"
	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

// SimOptions configures a SimContext
type SimOptions struct {
	// SharedRing exposes the emulated completion ring for userspace reaping.
	SharedRing bool

	// Deferred holds completions until Release, Cancel or a GetEvents call
	// that asks for a minimum.
	Deferred bool

	// SupportedFlags is the set of uapi.IOCTX_FLAG_* bits the simulated
	// kernel accepts. Asking for anything else fails with EOPNOTSUPP.
	SupportedFlags uint32
}

// SimContext is a deterministic in-process Context for testing code that
// drives an Engine. I/O is performed at submit time against attached
// targets (see backend.Memory) addressed by descriptor.
type SimContext struct {
	opts SimOptions

	mu      sync.Mutex
	cfg     ContextConfig
	targets map[uint32]interfaces.Target
	ring    *aioctx.SharedRing
	held    []uapi.IOEvent
	getErrs []error

	// SubmitFunc, when set, is consulted on every submit call (numbered
	// from 1). It returns how many descriptors to accept or an error to
	// fail the whole call with.
	SubmitFunc func(call int, batch []*IOCB) (int, error)

	// CancelFunc, when set, replaces the default cancel behavior.
	CancelFunc func(iocb *IOCB) error

	submitCalls atomic.Int64
	submitted   atomic.Int64
	getCalls    atomic.Int64
	destroyed   atomic.Bool
}

// NewSimContext creates a simulated context
func NewSimContext(opts SimOptions) *SimContext {
	return &SimContext{
		opts:    opts,
		targets: make(map[uint32]interfaces.Target),
	}
}

// Attach makes t addressable through its descriptor
func (s *SimContext) Attach(t interfaces.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[uint32(t.Fd())] = t
}

// Factory returns a ContextFactory that hands out this context
func (s *SimContext) Factory() ContextFactory {
	return func(cfg ContextConfig) (Context, error) {
		if cfg.Flags&^s.opts.SupportedFlags != 0 {
			return nil, unix.EOPNOTSUPP
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cfg = cfg
		s.ring = aioctx.EmulatedRing(cfg.Depth)
		return s, nil
	}
}

// Apply wires the context, and inline sync and trim against attached
// targets, into opts.
func (s *SimContext) Apply(opts *Options) {
	opts.NewContext = s.Factory()
	opts.Syncer = s
	opts.Trimmer = s
}

// Config returns the configuration the engine created the context with
func (s *SimContext) Config() ContextConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// FailGetEvents makes the next GetEvents calls return errs in order.
// A nil entry lets that call proceed normally.
func (s *SimContext) FailGetEvents(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErrs = append(s.getErrs, errs...)
}

func (s *SimContext) SharedRing() *aioctx.SharedRing {
	if !s.opts.SharedRing {
		return nil
	}
	return s.ring
}

func (s *SimContext) Submit(batch []*uapi.IOCB) (int, error) {
	call := int(s.submitCalls.Add(1))
	accept := len(batch)
	if s.SubmitFunc != nil {
		n, err := s.SubmitFunc(call, batch)
		if err != nil {
			return 0, err
		}
		accept = min(accept, max(n, 0))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, iocb := range batch[:accept] {
		ev := s.execute(iocb)
		if s.opts.Deferred {
			s.held = append(s.held, ev)
		} else {
			s.ring.Post(ev)
		}
	}
	s.submitted.Add(int64(accept))
	return accept, nil
}

func (s *SimContext) execute(iocb *uapi.IOCB) uapi.IOEvent {
	ev := uapi.IOEvent{Data: iocb.Data, Obj: uint64(uintptr(unsafe.Pointer(iocb)))}
	if s.cfg.Flags&uapi.IOCTX_FLAG_USERIOCB != 0 {
		ev.Obj = iocb.Data
	}

	t, ok := s.targets[iocb.FD]
	if !ok {
		ev.Res = -int64(unix.EBADF)
		return ev
	}

	var buf []byte
	if iocb.Nbytes > 0 {
		buf = unsafe.Slice((*byte)(unsafe.Pointer(uintptr(iocb.Buf))), iocb.Nbytes)
	}

	var n int
	var err error
	switch iocb.Opcode {
	case uapi.IOCB_CMD_PREAD:
		n, err = t.ReadAt(buf, iocb.Offset)
	case uapi.IOCB_CMD_PWRITE:
		n, err = t.WriteAt(buf, iocb.Offset)
	case uapi.IOCB_CMD_FSYNC, uapi.IOCB_CMD_FDSYNC:
		err = t.Flush()
	default:
		ev.Res = -int64(unix.EINVAL)
		return ev
	}
	if err != nil {
		ev.Res = -int64(unix.EIO)
		return ev
	}
	ev.Res = int64(n)
	return ev
}

func (s *SimContext) GetEvents(minNr, nr int, events []uapi.IOEvent, timeout time.Duration) (int, error) {
	s.getCalls.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.getErrs) > 0 {
		err := s.getErrs[0]
		s.getErrs = s.getErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	if s.opts.Deferred && minNr > 0 && int(s.ring.Pending()) < minNr {
		s.releaseLocked(len(s.held))
	}
	if nr > len(events) {
		nr = len(events)
	}
	return s.ring.Read(events[:nr]), nil
}

// Release moves up to n held completions onto the ring and returns how
// many were moved.
func (s *SimContext) Release(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(n)
}

func (s *SimContext) releaseLocked(n int) int {
	n = min(n, len(s.held))
	for _, ev := range s.held[:n] {
		s.ring.Post(ev)
	}
	s.held = s.held[n:]
	return n
}

// Cancel completes a held descriptor with -ECANCELED. Descriptors that
// already completed cannot be cancelled (EINVAL), as with the kernel.
func (s *SimContext) Cancel(iocb *uapi.IOCB, res *uapi.IOEvent) error {
	if s.CancelFunc != nil {
		return s.CancelFunc(iocb)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ev := range s.held {
		if ev.Data != iocb.Data {
			continue
		}
		ev.Res = -int64(unix.ECANCELED)
		s.held = append(s.held[:i], s.held[i+1:]...)
		s.ring.Post(ev)
		*res = ev
		return nil
	}
	return unix.EINVAL
}

func (s *SimContext) Destroy() error {
	s.destroyed.Store(true)
	return nil
}

// Sync flushes an attached target
func (s *SimContext) Sync(f File, dataOnly bool) error {
	t, err := s.target(f)
	if err != nil {
		return err
	}
	return t.Flush()
}

// Trim discards a range of an attached target
func (s *SimContext) Trim(f File, offset, length int64) error {
	t, err := s.target(f)
	if err != nil {
		return err
	}
	return t.Discard(offset, length)
}

func (s *SimContext) target(f File) (interfaces.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[uint32(f.Fd())]
	if !ok {
		return nil, unix.EBADF
	}
	return t, nil
}

// SubmitCalls returns the number of Submit calls
func (s *SimContext) SubmitCalls() int { return int(s.submitCalls.Load()) }

// Submitted returns the number of descriptors accepted
func (s *SimContext) Submitted() int { return int(s.submitted.Load()) }

// GetEventsCalls returns the number of GetEvents calls
func (s *SimContext) GetEventsCalls() int { return int(s.getCalls.Load()) }

// Held returns the number of completions not yet released
func (s *SimContext) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}

// Destroyed reports whether Destroy was called
func (s *SimContext) Destroyed() bool { return s.destroyed.Load() }

var (
	_ Context             = (*SimContext)(nil)
	_ aioctx.RingProvider = (*SimContext)(nil)
)
