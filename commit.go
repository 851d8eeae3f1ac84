package kaio

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-kaio/internal/constants"
)

// Commit submits queued requests in contiguous batches and returns how
// many the context accepted. Transient refusals with work still queued end
// the call early with no error so the caller can reap first.
func (e *Engine) Commit() (int, error) {
	if err := e.running("commit"); err != nil {
		return 0, err
	}
	n, err := e.commit()
	e.settle()
	return n, err
}

func (e *Engine) commit() (int, error) {
	if e.tracker.Queued() == 0 {
		return 0, nil
	}
	e.state = StateCommitting

	total := 0
	var stallStart time.Time

	for {
		start, nr := e.tracker.CommitRange()
		n, err := e.ctx.Submit(e.slots[start : start+nr])

		if err == nil {
			e.obs.ObserveSubmit(n)
			stallStart = time.Time{}
			if n == 0 {
				if e.tracker.Queued() == 0 {
					break
				}
				continue
			}
			if n > int(nr) {
				n = int(nr)
			}
			now := e.clock.Now()
			for i := start; i < start+uint32(n); i++ {
				e.slotReqs[i].IssueTime = now
				e.slotReqs[i] = nil
				e.slots[i] = nil
			}
			e.tracker.Advance(uint32(n))
			e.inflight += n
			total += n
			e.log.Batch(int(start), int(nr), n)
			if e.tracker.Queued() == 0 {
				break
			}
			continue
		}

		switch {
		case errors.Is(err, unix.EINTR):
			stallStart = time.Time{}
			continue

		case errors.Is(err, unix.EAGAIN):
			e.obs.ObserveBackpressure(false)
			if e.tracker.Queued() > 0 {
				e.log.Warn("submit would block, reaping first", "in_flight", e.inflight, "queued", e.tracker.Queued())
				return total, nil
			}
			// nothing left to hand over: the context itself is saturated
			now := e.clock.Now()
			if stallStart.IsZero() {
				stallStart = now
			} else if now.Sub(stallStart) > constants.StallBudget {
				e.log.Error("aio appears to be stalled, giving up", "in_flight", e.inflight, "waited", now.Sub(stallStart))
				return total, &Error{Op: "commit", Index: -1, Code: ErrCodeStallTimeout, Errno: unix.EAGAIN, Msg: "aio appears to be stalled, giving up", Inner: err}
			}
			e.clock.Sleep(constants.StallRetryDelay)
			continue

		case errors.Is(err, unix.ENOMEM):
			e.obs.ObserveBackpressure(true)
			if e.tracker.Queued() > 0 {
				e.log.Warn("submit out of memory, reaping first", "in_flight", e.inflight, "queued", e.tracker.Queued())
				return total, nil
			}
			return total, &Error{Op: "commit", Index: -1, Code: ErrCodeResourceExhaustion, Errno: unix.ENOMEM, Msg: "context out of memory with nothing queued", Inner: err}

		default:
			e.log.Error("submit failed", "error", err)
			return total, WrapError("commit", err)
		}
	}

	e.obs.ObserveQueueDepth(uint32(e.inflight))
	return total, nil
}
