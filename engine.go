// Package kaio drives a kernel asynchronous I/O context: requests are
// prepared into descriptors, queued on a fixed ring, submitted in batches
// and reaped either through io_getevents or straight from the shared
// completion ring.
//
// An Engine is driven by a single goroutine and does no locking.
package kaio

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-kaio/internal/aioctx"
	"github.com/ehrlich-b/go-kaio/internal/clock"
	"github.com/ehrlich-b/go-kaio/internal/constants"
	"github.com/ehrlich-b/go-kaio/internal/interfaces"
	"github.com/ehrlich-b/go-kaio/internal/logging"
	"github.com/ehrlich-b/go-kaio/internal/queue"
	"github.com/ehrlich-b/go-kaio/internal/ring"
	"github.com/ehrlich-b/go-kaio/internal/uapi"
	"github.com/ehrlich-b/go-kaio/internal/uring"
)

// IOEngine is the operation surface of an engine
type IOEngine interface {
	Prepare(req *Request) error
	Enqueue(req *Request) (QueueStatus, error)
	Commit() (int, error)
	PollCompletions(min, max int, timeout time.Duration) ([]*Request, error)
	Cancel(req *Request) error
	Cleanup() error
}

// QueueStatus is the outcome of Enqueue
type QueueStatus int

const (
	QueueQueued          QueueStatus = iota // on the ring, awaiting Commit
	QueueBusy                               // not accepted; reap or commit first
	QueueCompletedInline                    // finished synchronously, result is set
)

func (s QueueStatus) String() string {
	switch s {
	case QueueQueued:
		return "queued"
	case QueueBusy:
		return "busy"
	case QueueCompletedInline:
		return "completed"
	default:
		return "unknown"
	}
}

// State is the engine lifecycle state
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateQueuing       State = "queuing"
	StateCommitting    State = "committing"
	StateDraining      State = "draining"
	StateCleanedUp     State = "cleaned-up"
)

// Engine is a native asynchronous I/O engine
type Engine struct {
	opts    Options
	state   State
	log     *logging.Logger
	clock   clock.Clock
	obs     Observer
	metrics *Metrics
	syncer  interfaces.Syncer
	trimmer interfaces.Trimmer

	tracker  *ring.Tracker
	descs    *queue.DescriptorPool
	index    *queue.IndexTable[*Request]
	slots    []*uapi.IOCB // ring slot -> descriptor handed to submit
	slotReqs []*Request   // ring slot -> owner, for issue timestamps
	busy     []bool       // request index -> queued or in flight
	events   []uapi.IOEvent
	done     []*Request
	inflight int

	ctx    aioctx.Context
	shared *aioctx.SharedRing

	teardown sync.WaitGroup
}

var _ IOEngine = (*Engine)(nil)

// New allocates an engine. Requests must be registered before Start.
func New(opts Options) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Backend == "" {
		opts.Backend = BackendLibaio
	}
	if opts.MaxBlockSize <= 0 {
		opts.MaxBlockSize = constants.DefaultMaxBlockSize
	}

	descs, err := queue.NewDescriptorPool(opts.Depth, opts.UserOwnedDescriptors)
	if err != nil {
		return nil, WrapError("init", err)
	}

	e := &Engine{
		opts:     opts,
		state:    StateUninitialized,
		clock:    opts.Clock,
		metrics:  NewMetrics(),
		syncer:   opts.Syncer,
		trimmer:  opts.Trimmer,
		tracker:  ring.NewTracker(uint32(opts.Depth)),
		descs:    descs,
		index:    queue.NewIndexTable[*Request](opts.Depth),
		slots:    make([]*uapi.IOCB, opts.Depth),
		slotReqs: make([]*Request, opts.Depth),
		busy:     make([]bool, opts.Depth),
		events:   make([]uapi.IOEvent, opts.Depth),
		done:     make([]*Request, 0, opts.Depth),
	}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	e.log = logger.WithEngine(string(opts.Backend), opts.Depth)
	e.obs = opts.Observer
	if e.obs == nil {
		e.obs = NewMetricsObserver(e.metrics)
	}
	if e.syncer == nil {
		e.syncer = osSyncer{}
	}
	if e.trimmer == nil {
		e.trimmer = osTrimmer{}
	}
	return e, nil
}

// Register binds req to its index. Every request the engine will see must
// be registered once, before Start.
func (e *Engine) Register(req *Request) error {
	if e.state != StateUninitialized {
		return NewError("register", ErrCodeInvalidParameters, "requests must be registered before start")
	}
	if req == nil {
		return NewError("register", ErrCodeInvalidParameters, "nil request")
	}
	if err := e.index.Register(req.Index, req); err != nil {
		return &Error{Op: "register", Index: req.Index, Code: ErrCodeInvalidParameters, Msg: err.Error()}
	}
	return nil
}

// Start pre-fills fixed-buffer descriptors and creates the context.
func (e *Engine) Start() error {
	switch e.state {
	case StateUninitialized:
	case StateCleanedUp:
		return NewError("start", ErrCodeEngineClosed, "")
	default:
		return NewError("start", ErrCodeInvalidParameters, "engine already started")
	}

	if e.opts.FixedBuffers {
		for i := 0; i < e.opts.Depth; i++ {
			req, ok := e.index.Lookup(uint64(i))
			if !ok || len(req.Buf) == 0 {
				return &Error{Op: "start", Index: i, Code: ErrCodeInvalidParameters, Msg: "fixed buffers need a registered buffer for every index"}
			}
			d := e.descs.At(i)
			d.Buf = bufAddr(req.Buf)
			d.Nbytes = uint64(min(e.opts.MaxBlockSize, cap(req.Buf)))
		}
	}

	cfg := ContextConfig{
		Depth: uint32(e.opts.Depth),
		Flags: e.opts.contextFlags(),
	}
	if e.opts.UserOwnedDescriptors {
		cfg.IOCBs = e.descs.Descriptors()
	}

	factory := e.opts.NewContext
	if factory == nil {
		factory = defaultFactory(e.opts.Backend)
	}
	ctx, err := factory(cfg)
	if err != nil {
		var errno syscall.Errno
		if errors.As(err, &errno) && (errno == unix.EOPNOTSUPP || errno == unix.ENOSYS) {
			e.log.Error("context does not support requested features", "flags", cfg.Flags, "error", err)
			return &Error{Op: "start", Index: -1, Code: ErrCodeCapabilityUnsupported, Errno: errno, Msg: "context does not support requested features", Inner: err}
		}
		e.log.Error("failed to create context", "error", err)
		return WrapError("start", err)
	}
	e.ctx = ctx

	if e.opts.UserspaceReap {
		if rp, ok := ctx.(aioctx.RingProvider); ok && rp.SharedRing().Recognized() {
			e.shared = rp.SharedRing()
		} else {
			e.log.Debug("shared completion ring not recognized, reaping with io_getevents")
		}
	}

	e.state = StateReady
	e.log.Info("engine started",
		"flags", cfg.Flags,
		"userspace_reap", e.shared != nil,
		"registered", e.index.Len())
	return nil
}

// Open creates, registers and starts an engine in one call.
func Open(opts Options, reqs []*Request) (IOEngine, error) {
	e, err := New(opts)
	if err != nil {
		return nil, err
	}
	for _, req := range reqs {
		if err := e.Register(req); err != nil {
			return nil, errors.Join(err, e.Cleanup())
		}
	}
	if err := e.Start(); err != nil {
		return nil, errors.Join(err, e.Cleanup())
	}
	return e, nil
}

func defaultFactory(b Backend) ContextFactory {
	if b == BackendIOUring {
		return func(cfg ContextConfig) (Context, error) {
			c, err := uring.New(cfg)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	return func(cfg ContextConfig) (Context, error) {
		c, err := aioctx.NewNative(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func bufAddr(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

func (e *Engine) running(op string) error {
	switch e.state {
	case StateUninitialized:
		return NewError(op, ErrCodeNotReady, "")
	case StateCleanedUp:
		return NewError(op, ErrCodeEngineClosed, "")
	}
	return nil
}

func (e *Engine) owns(op string, req *Request) error {
	if req == nil {
		return NewError(op, ErrCodeInvalidParameters, "nil request")
	}
	got, ok := e.index.Lookup(uint64(req.Index))
	if !ok || got != req {
		return &Error{Op: op, Index: req.Index, Code: ErrCodeInvalidParameters, Msg: "request not registered at its index"}
	}
	return nil
}

// settle derives the resting state from ring occupancy
func (e *Engine) settle() {
	switch {
	case e.tracker.Queued() > 0:
		e.state = StateQueuing
	case e.inflight > 0:
		e.state = StateDraining
	default:
		e.state = StateReady
	}
}

// Prepare fills the request's descriptor. No I/O happens here.
func (e *Engine) Prepare(req *Request) error {
	if err := e.running("prep"); err != nil {
		return err
	}
	if err := e.owns("prep", req); err != nil {
		return err
	}
	if req.File == nil {
		return &Error{Op: "prep", Index: req.Index, Code: ErrCodeInvalidParameters, Msg: "request has no file"}
	}

	d := e.descs.At(req.Index)
	d.Flags = 0
	fd := int32(req.File.Fd())

	switch req.Dir {
	case Read, Write:
		if len(req.Buf) == 0 {
			return &Error{Op: "prep", Index: req.Index, Code: ErrCodeInvalidParameters, Msg: "empty buffer"}
		}
		if req.Dir == Read {
			d.PrepPread(fd, bufAddr(req.Buf), uint64(len(req.Buf)), req.Offset)
		} else {
			d.PrepPwrite(fd, bufAddr(req.Buf), uint64(len(req.Buf)), req.Offset)
		}
		if e.opts.HighPriority {
			d.Flags |= uapi.IOCB_FLAG_HIPRI
		}
	case Sync:
		d.PrepFsync(fd)
	case DataSync:
		d.PrepFdsync(fd)
	case Trim:
		// executed inline by Enqueue
	default:
		return &Error{Op: "prep", Index: req.Index, Code: ErrCodeInvalidParameters, Msg: fmt.Sprintf("unknown direction %d", req.Dir)}
	}
	req.reset()
	return nil
}

// Enqueue puts a prepared request on the ring. Sync and trim requests are
// only accepted while nothing is queued and complete before returning.
func (e *Engine) Enqueue(req *Request) (QueueStatus, error) {
	if err := e.running("queue"); err != nil {
		return QueueBusy, err
	}
	if err := e.owns("queue", req); err != nil {
		return QueueBusy, err
	}

	if e.tracker.Full() {
		return QueueBusy, nil
	}
	if e.busy[req.Index] {
		e.log.Debug("request already outstanding", "index", req.Index)
		return QueueBusy, nil
	}

	if req.Dir.Inline() {
		if e.tracker.Queued() > 0 {
			return QueueBusy, nil
		}
		e.completeInline(req)
		return QueueCompletedInline, nil
	}

	slot, _ := e.tracker.Push()
	e.slots[slot] = e.descs.At(req.Index)
	e.slotReqs[slot] = req
	e.busy[req.Index] = true
	e.state = StateQueuing
	return QueueQueued, nil
}

func (e *Engine) completeInline(req *Request) {
	start := e.clock.Now()
	req.IssueTime = start

	var err error
	switch req.Dir {
	case Sync, DataSync:
		err = e.syncer.Sync(req.File, req.Dir == DataSync)
	case Trim:
		err = e.trimmer.Trim(req.File, req.Offset, req.Length)
	}

	req.Resid = 0
	req.Err = nil
	if err != nil {
		req.Err = requestError(req.Dir.String(), req.Index, err)
	}
	e.obs.ObserveCompletion(req.Dir, uint64(req.XferLen()), uint64(e.clock.Now().Sub(start)), err == nil)
}

func requestError(op string, index int, err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return NewRequestError(op, index, mapErrnoToCode(errno), errno)
	}
	we := WrapError(op, err)
	we.Index = index
	return we
}

// Cancel asks the context to cancel an in-flight request. The request
// still completes through PollCompletions. ErrUnsupported is returned when
// the context cannot cancel it.
func (e *Engine) Cancel(req *Request) error {
	if err := e.running("cancel"); err != nil {
		return err
	}
	if err := e.owns("cancel", req); err != nil {
		return err
	}

	var res uapi.IOEvent
	err := e.ctx.Cancel(e.descs.At(req.Index), &res)
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.EINPROGRESS:
			return nil
		case unix.EINVAL, unix.ENOSYS, unix.EOPNOTSUPP:
			return &Error{Op: "cancel", Index: req.Index, Code: ErrCodeCapabilityUnsupported, Errno: errno, Msg: "request cannot be cancelled", Inner: err}
		}
	}
	return WrapError("cancel", err)
}

// Cleanup destroys the context, waiting for in-flight I/O unless
// BackgroundTeardown is set. It is safe to call more than once.
func (e *Engine) Cleanup() error {
	if e.state == StateCleanedUp {
		return nil
	}
	e.state = StateCleanedUp
	e.metrics.Stop()

	ctx, descs := e.ctx, e.descs
	e.ctx, e.shared = nil, nil

	if ctx == nil {
		return descs.Close()
	}

	if e.opts.BackgroundTeardown {
		e.teardown.Add(1)
		go func() {
			defer e.teardown.Done()
			if err := ctx.Destroy(); err != nil {
				e.log.Warn("background context teardown failed", "error", err)
			}
			descs.Close()
		}()
		return nil
	}

	err := ctx.Destroy()
	if cerr := descs.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return WrapError("cleanup", err)
	}
	e.log.Debug("engine cleaned up")
	return nil
}

// WaitTeardown blocks until a background teardown has finished.
func (e *Engine) WaitTeardown() {
	e.teardown.Wait()
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	return e.state
}

// Depth returns the ring capacity
func (e *Engine) Depth() int {
	return e.opts.Depth
}

// Queued returns the number of requests waiting for Commit
func (e *Engine) Queued() int {
	return int(e.tracker.Queued())
}

// InFlight returns the number of submitted requests not yet reaped
func (e *Engine) InFlight() int {
	return e.inflight
}

// UserspaceReap reports whether the shared completion ring is in use
func (e *Engine) UserspaceReap() bool {
	return e.shared != nil
}

// Metrics returns the built-in metrics. They are only fed when no custom
// Observer was configured.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// EngineInfo summarizes an engine
type EngineInfo struct {
	Backend       Backend `json:"backend"`
	State         State   `json:"state"`
	Depth         int     `json:"depth"`
	Queued        int     `json:"queued"`
	InFlight      int     `json:"in_flight"`
	UserspaceReap bool    `json:"userspace_reap"`
	Flags         uint32  `json:"flags"`
}

// Info returns a summary of the engine
func (e *Engine) Info() EngineInfo {
	return EngineInfo{
		Backend:       e.opts.Backend,
		State:         e.state,
		Depth:         e.opts.Depth,
		Queued:        e.Queued(),
		InFlight:      e.inflight,
		UserspaceReap: e.shared != nil,
		Flags:         e.opts.contextFlags(),
	}
}
