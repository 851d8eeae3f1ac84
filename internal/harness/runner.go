// Package harness drives an engine over a synthetic workload. It owns the
// payload buffers and decides offsets and directions; the engine only
// moves the bytes.
package harness

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/bytedance/gopkg/lang/dirtmake"

	kaio "github.com/ehrlich-b/go-kaio"
	"github.com/ehrlich-b/go-kaio/internal/logging"
	"github.com/ehrlich-b/go-kaio/internal/queue"
)

// Workload describes the I/O a Runner issues
type Workload struct {
	Target kaio.File
	Size   int64 // addressable bytes, rounded down to whole blocks
	Block  int

	// WritePercent is the share of writes in a mixed workload (0-100).
	WritePercent int

	// Ops is the number of reads and writes to issue. Zero runs until the
	// context is cancelled.
	Ops int

	Sequential bool

	// SyncEvery issues an inline sync after this many writes.
	SyncEvery int

	// Verify writes every block with a known pattern, then reads it back
	// and compares. WritePercent, Ops and Sequential are ignored.
	Verify bool

	Seed int64
}

// Config configures a Runner
type Config struct {
	Engine   kaio.Options
	Workload Workload

	// Aligned places buffers in a page-aligned arena, as O_DIRECT needs.
	Aligned bool

	Logger *logging.Logger
}

// Stats summarizes a run
type Stats struct {
	Reads      uint64
	Writes     uint64
	Syncs      uint64
	Bytes      uint64
	Errors     uint64
	Short      uint64
	Busy       uint64
	Mismatches uint64
	Elapsed    time.Duration
}

// Runner issues a workload through one engine from a single OS thread
type Runner struct {
	cfg   Config
	wl    Workload
	eng   *kaio.Engine
	log   *logging.Logger
	reqs  []*kaio.Request
	free  []int
	arena *queue.Arena
	rng   *rand.Rand

	blocks      int64
	issued      int
	writes      int
	pendingSync bool
	expect      []byte

	stats Stats

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewRunner allocates buffers and requests and starts the engine
func NewRunner(ctx context.Context, cfg Config) (*Runner, error) {
	wl := cfg.Workload
	if wl.Target == nil {
		return nil, fmt.Errorf("workload has no target")
	}
	if wl.Block <= 0 || wl.Block%8 != 0 {
		return nil, fmt.Errorf("block size %d must be a positive multiple of 8", wl.Block)
	}
	blocks := wl.Size / int64(wl.Block)
	if blocks == 0 {
		return nil, fmt.Errorf("target size %d is smaller than one block", wl.Size)
	}
	if wl.WritePercent < 0 || wl.WritePercent > 100 {
		return nil, fmt.Errorf("write percent %d out of range", wl.WritePercent)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	opts := cfg.Engine
	if opts.Logger == nil {
		opts.Logger = logger
	}
	depth := opts.Depth
	if depth <= 0 {
		return nil, fmt.Errorf("depth %d must be positive", depth)
	}

	r := &Runner{
		cfg:    cfg,
		wl:     wl,
		log:    logger,
		reqs:   make([]*kaio.Request, depth),
		free:   make([]int, 0, depth),
		rng:    rand.New(rand.NewSource(wl.Seed)),
		blocks: blocks,
		done:   make(chan struct{}),
	}
	if wl.Verify {
		r.expect = dirtmake.Bytes(wl.Block, wl.Block)
	}

	if cfg.Aligned {
		arena, err := queue.NewArena(depth, wl.Block)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate buffer arena: %w", err)
		}
		r.arena = arena
	}

	eng, err := kaio.New(opts)
	if err != nil {
		r.release()
		return nil, err
	}
	r.eng = eng

	for i := 0; i < depth; i++ {
		var buf []byte
		if r.arena != nil {
			buf = r.arena.Slot(i, wl.Block)
		} else {
			buf = queue.GetBuffer(uint32(wl.Block))[:wl.Block]
		}
		r.reqs[i] = &kaio.Request{Index: i, File: wl.Target, Buf: buf}
		r.free = append(r.free, i)
		if err := eng.Register(r.reqs[i]); err != nil {
			r.Close()
			return nil, err
		}
	}
	if err := eng.Start(); err != nil {
		r.Close()
		return nil, err
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	return r, nil
}

// Engine returns the engine the runner drives
func (r *Runner) Engine() *kaio.Engine {
	return r.eng
}

// Start runs the workload in the background
func (r *Runner) Start() {
	go func() {
		defer close(r.done)
		r.err = r.ioLoop()
	}()
}

// Run runs the workload to completion on the calling goroutine
func (r *Runner) Run() error {
	defer close(r.done)
	r.err = r.ioLoop()
	return r.err
}

// Stop asks the loop to drain in-flight I/O and return
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Wait blocks until the loop has returned and reports its error
func (r *Runner) Wait() error {
	<-r.done
	return r.err
}

// Stats returns the run summary. Only stable after Wait or Run.
func (r *Runner) Stats() Stats {
	return r.stats
}

// Close tears down the engine and releases buffers. A runner started with
// Start must be waited for first.
func (r *Runner) Close() error {
	r.Stop()
	var err error
	if r.eng != nil {
		err = r.eng.Cleanup()
		r.eng.WaitTeardown()
	}
	r.release()
	return err
}

func (r *Runner) release() {
	if r.arena != nil {
		r.arena.Close()
		r.arena = nil
		return
	}
	for _, req := range r.reqs {
		if req != nil && req.Buf != nil {
			queue.PutBuffer(req.Buf)
			req.Buf = nil
		}
	}
}

func (r *Runner) total() int {
	if r.wl.Verify {
		return int(2 * r.blocks)
	}
	return r.wl.Ops
}

func (r *Runner) exhausted() bool {
	return r.total() > 0 && r.issued >= r.total()
}

// ioLoop fills the ring, commits and reaps until the workload is issued
// or the context is cancelled, then drains what is still in flight.
func (r *Runner) ioLoop() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	start := time.Now()
	defer func() { r.stats.Elapsed = time.Since(start) }()

	r.log.Info("runner started",
		"depth", r.eng.Depth(),
		"block", r.wl.Block,
		"blocks", r.blocks,
		"ops", r.total(),
		"verify", r.wl.Verify)

	for {
		stopping := r.ctx.Err() != nil || r.exhausted()
		if !stopping {
			if err := r.fill(); err != nil {
				return err
			}
		}

		if _, err := r.eng.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}

		pending := r.eng.InFlight() + r.eng.Queued()
		if pending == 0 {
			if stopping {
				break
			}
			continue
		}

		want := 1
		if bm := r.cfg.Engine.BatchCompleteMin; bm > 0 && !stopping {
			want = bm
		}
		done, err := r.eng.PollCompletions(min(want, pending), 0, kaio.Forever)
		for _, req := range done {
			r.complete(req)
		}
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
	}

	r.log.Info("runner finished",
		"reads", r.stats.Reads,
		"writes", r.stats.Writes,
		"errors", r.stats.Errors,
		"short", r.stats.Short)
	if r.stats.Mismatches > 0 {
		return fmt.Errorf("verify: %d blocks mismatched", r.stats.Mismatches)
	}
	return nil
}

// fill prepares and enqueues requests until the ring refuses more
func (r *Runner) fill() error {
	for len(r.free) > 0 && !r.exhausted() {
		idx := r.free[len(r.free)-1]
		req := r.reqs[idx]

		if r.pendingSync {
			req.Dir = kaio.Sync
		} else if !r.next(req) {
			return nil
		}

		if err := r.eng.Prepare(req); err != nil {
			return fmt.Errorf("prep %d: %w", idx, err)
		}
		st, err := r.eng.Enqueue(req)
		if err != nil {
			return fmt.Errorf("queue %d: %w", idx, err)
		}

		switch st {
		case kaio.QueueBusy:
			r.stats.Busy++
			return nil
		case kaio.QueueCompletedInline:
			r.pendingSync = false
			r.complete(req)
			continue
		}

		r.free = r.free[:len(r.free)-1]
		r.issued++
		if req.Dir == kaio.Write {
			r.writes++
			if r.wl.SyncEvery > 0 && r.writes%r.wl.SyncEvery == 0 {
				r.pendingSync = true
			}
		}
	}
	return nil
}

// next picks the direction and offset of the next transfer. It returns
// false when the request must wait for earlier completions.
func (r *Runner) next(req *kaio.Request) bool {
	bs := int64(r.wl.Block)

	if r.wl.Verify {
		n := int64(r.issued)
		if n < r.blocks {
			req.Dir = kaio.Write
			req.Offset = n * bs
			fillPattern(req.Buf, req.Offset)
			return true
		}
		// reads start once every write has landed
		if r.stats.Writes < uint64(r.blocks) {
			return false
		}
		req.Dir = kaio.Read
		req.Offset = (n - r.blocks) * bs
		return true
	}

	var block int64
	if r.wl.Sequential {
		block = int64(r.issued) % r.blocks
	} else {
		block = r.rng.Int63n(r.blocks)
	}
	req.Offset = block * bs
	req.Dir = kaio.Read
	if r.rng.Intn(100) < r.wl.WritePercent {
		req.Dir = kaio.Write
		fillPattern(req.Buf, req.Offset)
	}
	return true
}

func (r *Runner) complete(req *kaio.Request) {
	switch req.Dir {
	case kaio.Read:
		r.stats.Reads++
	case kaio.Write:
		r.stats.Writes++
	case kaio.Sync, kaio.DataSync:
		r.stats.Syncs++
	}
	if !req.Dir.Inline() {
		r.free = append(r.free, req.Index)
	}

	if req.Err != nil {
		r.stats.Errors++
		r.log.WithRequest(req.Index, req.Dir.String()).Warn("request failed", "offset", req.Offset, "error", req.Err)
		return
	}
	r.stats.Bytes += uint64(req.Done())
	if req.Short() {
		r.stats.Short++
		r.log.Debug("short transfer", "index", req.Index, "offset", req.Offset, "resid", req.Resid)
		return
	}

	if r.wl.Verify && req.Dir == kaio.Read {
		fillPattern(r.expect, req.Offset)
		if !bytes.Equal(r.expect, req.Buf) {
			r.stats.Mismatches++
			r.log.Error("verify mismatch", "offset", req.Offset)
		}
	}
}

// fillPattern stamps each 8-byte word with its absolute byte offset
func fillPattern(buf []byte, offset int64) {
	for i := 0; i+8 <= len(buf); i += 8 {
		binary.LittleEndian.PutUint64(buf[i:], uint64(offset)+uint64(i))
	}
}
