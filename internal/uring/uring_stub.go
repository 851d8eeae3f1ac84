//go:build !linux

package uring

import (
	"syscall"
	"time"

	"github.com/ehrlich-b/go-kaio/internal/aioctx"
	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

// Context is unavailable off Linux.
type Context struct{}

// New always fails off Linux.
func New(cfg aioctx.Config) (*Context, error) {
	return nil, syscall.ENOSYS
}

func (c *Context) Submit(batch []*uapi.IOCB) (int, error) { return 0, syscall.ENOSYS }

func (c *Context) GetEvents(minNr, nr int, events []uapi.IOEvent, timeout time.Duration) (int, error) {
	return 0, syscall.ENOSYS
}

func (c *Context) Cancel(iocb *uapi.IOCB, res *uapi.IOEvent) error { return syscall.ENOSYS }
func (c *Context) Destroy() error                                  { return nil }
