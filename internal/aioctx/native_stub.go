//go:build !linux

package aioctx

import (
	"syscall"
	"time"

	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

// Native is unavailable off Linux.
type Native struct{}

// NewNative always fails off Linux.
func NewNative(cfg Config) (*Native, error) {
	return nil, syscall.ENOSYS
}

func (c *Native) Features() Features      { return Features{} }
func (c *Native) SharedRing() *SharedRing { return nil }

func (c *Native) Submit(batch []*uapi.IOCB) (int, error) { return 0, syscall.ENOSYS }

func (c *Native) GetEvents(minNr, nr int, events []uapi.IOEvent, timeout time.Duration) (int, error) {
	return 0, syscall.ENOSYS
}

func (c *Native) Cancel(iocb *uapi.IOCB, res *uapi.IOEvent) error { return syscall.ENOSYS }
func (c *Native) Destroy() error                                  { return nil }
