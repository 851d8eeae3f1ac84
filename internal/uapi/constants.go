// Package uapi provides Linux kernel UAPI definitions for native AIO
package uapi

// IOCB opcodes (enum in include/uapi/linux/aio_abi.h)
const (
	IOCB_CMD_PREAD   = 0
	IOCB_CMD_PWRITE  = 1
	IOCB_CMD_FSYNC   = 2
	IOCB_CMD_FDSYNC  = 3
	IOCB_CMD_POLL    = 5
	IOCB_CMD_NOOP    = 6
	IOCB_CMD_PREADV  = 7
	IOCB_CMD_PWRITEV = 8
)

// IOCB flags (aio_flags)
const (
	IOCB_FLAG_RESFD  = 1 << 0 // aio_resfd is valid
	IOCB_FLAG_IOPRIO = 1 << 1 // aio_reqprio is valid
	IOCB_FLAG_HIPRI  = 1 << 2 // polled completion
)

// Context setup flags accepted by the extended setup call (io_setup2).
const (
	IOCTX_FLAG_USERIOCB  = 1 << 0 // iocbs are user mapped, submitted by index
	IOCTX_FLAG_IOPOLL    = 1 << 1 // polled completions
	IOCTX_FLAG_FIXEDBUFS = 1 << 2 // buffers are pre-mapped in the user iocbs
)

// AIO_RING_MAGIC identifies a completion ring layout user space may read.
const AIO_RING_MAGIC = 0xa10a10a1

// AIO_RING_HEADER_SIZE is sizeof(struct aio_ring) without the event array.
const AIO_RING_HEADER_SIZE = 32
