//go:build linux

package kaio

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// osSyncer flushes real descriptors with fsync or fdatasync
type osSyncer struct{}

func (osSyncer) Sync(f File, dataOnly bool) error {
	fd := int(f.Fd())
	for {
		var err error
		if dataOnly {
			err = unix.Fdatasync(fd)
		} else {
			err = unix.Fsync(fd)
		}
		if err != unix.EINTR {
			return err
		}
	}
}

// osTrimmer discards ranges with BLKDISCARD on block devices and by
// punching holes in regular files
type osTrimmer struct{}

func (osTrimmer) Trim(f File, offset, length int64) error {
	fd := int(f.Fd())
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return err
	}
	if st.Mode&unix.S_IFMT == unix.S_IFBLK {
		rng := [2]uint64{uint64(offset), uint64(length)}
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.BLKDISCARD, uintptr(unsafe.Pointer(&rng[0])))
		if errno != 0 {
			return errno
		}
		return nil
	}
	return unix.Fallocate(fd, unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, offset, length)
}
