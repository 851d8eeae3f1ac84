package kaio

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-kaio/internal/constants"
	"github.com/ehrlich-b/go-kaio/internal/logging"
	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

// PollCompletions reaps between min and max completions, waiting up to
// timeout (Forever for no limit) and returns the finished requests with
// their results set. The returned slice is reused by the next call.
//
// Completions are read from the shared ring when userspace reaping is on
// and no blocking minimum applies; otherwise io_getevents is used. While
// fewer than min are available, queued submissions are flushed.
func (e *Engine) PollCompletions(min, max int, timeout time.Duration) ([]*Request, error) {
	if err := e.running("getevents"); err != nil {
		return nil, err
	}
	if max <= 0 || max > len(e.events) {
		max = len(e.events)
	}
	if min < 0 {
		min = 0
	}
	if min > max {
		return nil, NewError("getevents", ErrCodeInvalidParameters, fmt.Sprintf("min %d exceeds max %d", min, max))
	}

	actualMin := 0
	if e.opts.BatchCompleteMin != 0 {
		actualMin = min
	}

	events := 0
	var reapErr error
	for {
		var r int
		var err error
		fromRing := false
		if e.shared != nil && actualMin == 0 {
			r = e.shared.Read(e.events[events:max])
			fromRing = true
		} else {
			r, err = e.ctx.GetEvents(actualMin, max-events, e.events[events:max], timeout)
		}

		switch {
		case err == nil && r > 0:
			events += r
			e.obs.ObserveReap(r, fromRing)

		case (err == nil && r == 0 && min > 0) || errors.Is(err, unix.EAGAIN):
			if _, cerr := e.commit(); cerr != nil {
				reapErr = cerr
			}
			if actualMin > 0 {
				e.clock.Sleep(constants.ReapRetryDelay)
			}

		case err == nil || errors.Is(err, unix.EINTR):

		default:
			e.log.Error("getevents failed", "error", err)
			reapErr = WrapError("getevents", err)
		}

		if reapErr != nil || events >= min {
			break
		}
	}

	out := e.done[:0]
	for i := 0; i < events; i++ {
		req, err := e.event(&e.events[i])
		if err != nil {
			if reapErr == nil {
				reapErr = err
			}
			continue
		}
		out = append(out, req)
	}
	e.inflight -= events
	if e.inflight < 0 {
		e.inflight = 0
	}
	e.settle()
	return out, reapErr
}

// event resolves a completion record to its request and sets the result
func (e *Engine) event(ev *uapi.IOEvent) (*Request, error) {
	idx := ev.Data
	if e.opts.UserOwnedDescriptors {
		idx = ev.Obj
	}
	req, ok := e.index.Lookup(idx)
	if !ok {
		return nil, NewError("event", ErrCodeInvalidParameters, fmt.Sprintf("completion for unknown index %d", idx))
	}
	e.busy[req.Index] = false

	setResult(req, ev.Res)

	latency := e.clock.Now().Sub(req.IssueTime)
	e.obs.ObserveCompletion(req.Dir, uint64(req.Done()), uint64(latency), req.Err == nil)
	if req.Short() {
		e.obs.ObserveShortTransfer()
	}
	if e.log.Enabled(logging.LevelDebug) {
		e.log.Completion(req.Dir.String(), req.Offset, int(req.XferLen()), latency)
	}
	return req, nil
}

// setResult applies a completion result: a full transfer clears any
// previous error, a partial one records the residual, and a negative or
// oversized result is an error.
func setResult(req *Request, res int64) {
	want := req.XferLen()
	switch {
	case res == want:
		req.Err = nil
		req.Resid = 0
	case res < 0:
		req.Err = NewRequestError("event", req.Index, ErrCodeIOError, syscall.Errno(-res))
		req.Resid = 0
	case res > want:
		req.Err = NewRequestError("event", req.Index, ErrCodeIOError, unix.EOVERFLOW)
		req.Resid = 0
	default:
		req.Err = nil
		req.Resid = want - res
	}
}
