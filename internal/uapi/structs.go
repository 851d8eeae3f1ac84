package uapi

import "unsafe"

// IOCB is the kernel's struct iocb (64 bytes, little-endian layout):
//
//	struct iocb {
//	  __u64 aio_data;
//	  __u32 aio_key;
//	  __kernel_rwf_t aio_rw_flags;
//	  __u16 aio_lio_opcode;
//	  __s16 aio_reqprio;
//	  __u32 aio_fildes;
//	  __u64 aio_buf;
//	  __u64 aio_nbytes;
//	  __s64 aio_offset;
//	  __u64 aio_reserved2;
//	  __u32 aio_flags;
//	  __u32 aio_resfd;
//	};
type IOCB struct {
	Data      uint64 // copied into IOEvent.Data on completion
	Key       uint32
	RWFlags   int32
	Opcode    uint16
	ReqPrio   int16
	FD        uint32
	Buf       uint64
	Nbytes    uint64
	Offset    int64
	Reserved2 uint64
	Flags     uint32
	ResFD     uint32
}

var _ [64]byte = [unsafe.Sizeof(IOCB{})]byte{}

// Reset clears every field so a descriptor can be re-prepared.
func (c *IOCB) Reset() {
	*c = IOCB{}
}

// PrepPread fills a positioned read, as io_prep_pread does.
func (c *IOCB) PrepPread(fd int32, buf uint64, nbytes uint64, offset int64) {
	c.prep(IOCB_CMD_PREAD, fd, buf, nbytes, offset)
}

// PrepPwrite fills a positioned write, as io_prep_pwrite does.
func (c *IOCB) PrepPwrite(fd int32, buf uint64, nbytes uint64, offset int64) {
	c.prep(IOCB_CMD_PWRITE, fd, buf, nbytes, offset)
}

// PrepFsync fills a whole-file flush.
func (c *IOCB) PrepFsync(fd int32) {
	c.prep(IOCB_CMD_FSYNC, fd, 0, 0, 0)
}

// PrepFdsync fills a data-only flush.
func (c *IOCB) PrepFdsync(fd int32) {
	c.prep(IOCB_CMD_FDSYNC, fd, 0, 0, 0)
}

func (c *IOCB) prep(op uint16, fd int32, buf uint64, nbytes uint64, offset int64) {
	data, flags := c.Data, c.Flags
	*c = IOCB{
		Data:   data,
		Opcode: op,
		FD:     uint32(fd),
		Buf:    buf,
		Nbytes: nbytes,
		Offset: offset,
		Flags:  flags,
	}
}

// IOEvent is the kernel's struct io_event (32 bytes).
type IOEvent struct {
	Data uint64 // aio_data of the originating iocb
	Obj  uint64 // address (or user index) the iocb was submitted as
	Res  int64  // bytes transferred or negative errno
	Res2 int64
}

var _ [32]byte = [unsafe.Sizeof(IOEvent{})]byte{}

// AIORing is the header of the completion ring the kernel maps at the
// address returned by io_setup. IOEvents follow at HeaderLength.
type AIORing struct {
	ID               uint32 // kernel internal index number
	Nr               uint32 // number of io_events
	Head             uint32
	Tail             uint32
	Magic            uint32
	CompatFeatures   uint32
	IncompatFeatures uint32
	HeaderLength     uint32 // size of aio_ring
}

var _ [AIO_RING_HEADER_SIZE]byte = [unsafe.Sizeof(AIORing{})]byte{}
