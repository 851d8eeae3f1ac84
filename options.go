package kaio

import (
	"time"

	"github.com/ehrlich-b/go-kaio/internal/aioctx"
	"github.com/ehrlich-b/go-kaio/internal/clock"
	"github.com/ehrlich-b/go-kaio/internal/constants"
	"github.com/ehrlich-b/go-kaio/internal/interfaces"
	"github.com/ehrlich-b/go-kaio/internal/logging"
	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

// Context is the asynchronous I/O context an engine drives.
type Context = aioctx.Context

// ContextConfig describes the context an engine asks its factory for.
type ContextConfig = aioctx.Config

// IOCB and IOEvent are the kernel AIO descriptor and completion records.
type (
	IOCB    = uapi.IOCB
	IOEvent = uapi.IOEvent
)

// ContextFactory creates the context at Start.
type ContextFactory func(cfg ContextConfig) (Context, error)

// Clock is the time source for issue timestamps and retry sleeps.
type Clock = clock.Clock

// Backend selects the kernel interface behind the engine
type Backend string

const (
	BackendLibaio  Backend = "libaio"
	BackendIOUring Backend = "io_uring"
)

// Forever makes PollCompletions wait without a timeout.
const Forever time.Duration = -1

// Options configures an Engine
type Options struct {
	// Depth is the ring capacity and number of request slots.
	Depth int

	// Backend picks the context implementation. Ignored when NewContext is set.
	Backend Backend

	// UserspaceReap reads completions straight from the shared ring when
	// no minimum is requested. Falls back to the system call silently when
	// the ring layout is not recognized.
	UserspaceReap bool

	// HighPriority requests polled completions.
	HighPriority bool

	// UserOwnedDescriptors keeps descriptors in user memory registered with
	// the context; completions are matched by index.
	UserOwnedDescriptors bool

	// FixedBuffers pre-maps each request's buffer into its descriptor.
	// Requires UserOwnedDescriptors.
	FixedBuffers bool

	// MaxBlockSize is the byte count pre-filled into fixed-buffer descriptors.
	MaxBlockSize int

	// BatchCompleteMin mirrors the harness completion threshold. When zero
	// the reaper never blocks for a minimum.
	BatchCompleteMin int

	// BackgroundTeardown destroys the context on a separate goroutine.
	BackgroundTeardown bool

	// NewContext overrides context creation, e.g. with a SimContext.
	NewContext ContextFactory

	// Syncer and Trimmer perform inline sync and trim. Nil uses the OS.
	Syncer  interfaces.Syncer
	Trimmer interfaces.Trimmer

	Clock    Clock
	Logger   *logging.Logger
	Observer Observer
}

// DefaultOptions returns options for a libaio engine of the default depth
func DefaultOptions() Options {
	return Options{
		Depth:        constants.DefaultDepth,
		Backend:      BackendLibaio,
		MaxBlockSize: constants.DefaultMaxBlockSize,
	}
}

func (o *Options) validate() error {
	if o.Depth <= 0 {
		return NewError("init", ErrCodeInvalidParameters, "depth must be positive")
	}
	switch o.Backend {
	case "", BackendLibaio, BackendIOUring:
	default:
		return NewError("init", ErrCodeInvalidParameters, "unknown backend "+string(o.Backend))
	}
	if o.FixedBuffers && !o.UserOwnedDescriptors {
		return NewError("init", ErrCodeInvalidParameters, "fixed buffers require user-owned descriptors")
	}
	if o.BatchCompleteMin < 0 {
		return NewError("init", ErrCodeInvalidParameters, "batch complete minimum must not be negative")
	}
	return nil
}

func (o *Options) contextFlags() uint32 {
	var flags uint32
	if o.HighPriority {
		flags |= uapi.IOCTX_FLAG_IOPOLL
	}
	if o.UserOwnedDescriptors {
		flags |= uapi.IOCTX_FLAG_USERIOCB
	}
	if o.FixedBuffers {
		flags |= uapi.IOCTX_FLAG_FIXEDBUFS
	}
	return flags
}
