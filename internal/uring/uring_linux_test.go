//go:build linux

package uring

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-kaio/internal/aioctx"
	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

var _ aioctx.Context = (*Context)(nil)

func newOrSkip(t *testing.T, cfg aioctx.Config) *Context {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(func() { c.Destroy() })
	return c
}

func TestNewRejectsZeroDepth(t *testing.T) {
	_, err := New(aioctx.Config{})
	assert.Error(t, err)
}

func TestWriteThenRead(t *testing.T) {
	c := newOrSkip(t, aioctx.Config{Depth: 8})

	path := filepath.Join(t.TempDir(), "data")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	payload := []byte("io_uring backed context")
	w := &uapi.IOCB{Data: 1}
	w.PrepPwrite(int32(f.Fd()), uint64(uintptr(unsafe.Pointer(&payload[0]))), uint64(len(payload)), 0)

	n, err := c.Submit([]*uapi.IOCB{w})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	events := make([]uapi.IOEvent, 8)
	got, err := c.GetEvents(1, len(events), events, -1)
	require.NoError(t, err)
	require.Equal(t, 1, got)
	assert.Equal(t, uint64(1), events[0].Data)
	assert.Equal(t, int64(len(payload)), events[0].Res)

	buf := make([]byte, len(payload))
	r := &uapi.IOCB{Data: 2}
	r.PrepPread(int32(f.Fd()), uint64(uintptr(unsafe.Pointer(&buf[0]))), uint64(len(buf)), 0)
	s := &uapi.IOCB{Data: 3}
	s.PrepFdsync(int32(f.Fd()))

	n, err = c.Submit([]*uapi.IOCB{r, s})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	seen := map[uint64]int64{}
	for len(seen) < 2 {
		got, err = c.GetEvents(1, len(events), events, -1)
		require.NoError(t, err)
		for _, ev := range events[:got] {
			seen[ev.Data] = ev.Res
		}
	}
	assert.Equal(t, int64(len(payload)), seen[2])
	assert.Equal(t, int64(0), seen[3])
	assert.Equal(t, payload, buf)
}

func TestGetEventsNonBlockingEmpty(t *testing.T) {
	c := newOrSkip(t, aioctx.Config{Depth: 4})
	n, err := c.GetEvents(0, 4, make([]uapi.IOEvent, 4), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
