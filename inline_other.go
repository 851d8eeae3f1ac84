//go:build !linux

package kaio

import "syscall"

type osSyncer struct{}

func (osSyncer) Sync(f File, dataOnly bool) error {
	return syscall.Fsync(int(f.Fd()))
}

type osTrimmer struct{}

func (osTrimmer) Trim(f File, offset, length int64) error {
	return syscall.ENOSYS
}
