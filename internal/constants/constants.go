package constants

import "time"

// Default configuration constants
const (
	// DefaultDepth is the default ring capacity (and io_setup nr_events)
	DefaultDepth = 128

	// DefaultBlockSize is the default transfer size used by the harness
	DefaultBlockSize = 4096

	// DefaultMaxBlockSize bounds fixed-buffer descriptors pre-filled at start (1MB)
	DefaultMaxBlockSize = 1 << 20

	// BufferAlignment is the alignment O_DIRECT payload buffers are allocated with
	BufferAlignment = 4096
)

// Timing constants for the submit/reap retry state machine
const (
	// StallBudget is how long a saturated context may keep reporting
	// would-block with nothing in flight before commit gives up
	StallBudget = 30 * time.Second

	// StallRetryDelay is the sleep between submits while the context is saturated
	StallRetryDelay = time.Microsecond

	// ReapRetryDelay is the sleep between empty reaps when a minimum is requested
	ReapRetryDelay = 10 * time.Microsecond
)
