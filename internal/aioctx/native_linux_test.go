//go:build linux

package aioctx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

func newNativeOrSkip(t *testing.T, cfg Config) *Native {
	t.Helper()
	c, err := NewNative(cfg)
	if err != nil {
		t.Skipf("native aio unavailable: %v", err)
	}
	t.Cleanup(func() { c.Destroy() })
	return c
}

func TestNativeRejectsZeroDepth(t *testing.T) {
	_, err := NewNative(Config{})
	assert.True(t, errors.Is(err, unix.EINVAL))
}

func TestNativeFlagsWithoutSetup2(t *testing.T) {
	if sysIOSetup2 != 0 {
		t.Skip("built with aio_setup2")
	}

	iocbs := make([]uapi.IOCB, 4)
	c, err := NewNative(Config{Depth: 4, Flags: uapi.IOCTX_FLAG_USERIOCB, IOCBs: iocbs})
	require.Error(t, err)
	assert.Nil(t, c)
	assert.True(t, errors.Is(err, unix.EOPNOTSUPP))

	c2 := &Native{cfg: Config{Depth: 4, Flags: uapi.IOCTX_FLAG_IOPOLL}}
	assert.True(t, errors.Is(c2.setup2(), unix.ENOSYS), "no extended call without the build tag")
	assert.Zero(t, c2.id)
}

func TestNativeReadRoundTrip(t *testing.T) {
	c := newNativeOrSkip(t, Config{Depth: 8})

	path := filepath.Join(t.TempDir(), "data")
	payload := []byte("kernel aio round trip")
	require.NoError(t, os.WriteFile(path, payload, 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, len(payload))
	iocb := &uapi.IOCB{Data: 3}
	iocb.PrepPread(int32(f.Fd()), uint64(uintptr(unsafe.Pointer(&buf[0]))), uint64(len(buf)), 0)

	n, err := c.Submit([]*uapi.IOCB{iocb})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	events := make([]uapi.IOEvent, 8)
	got, err := c.GetEvents(1, len(events), events, -1)
	require.NoError(t, err)
	require.Equal(t, 1, got)
	assert.Equal(t, uint64(3), events[0].Data)
	assert.Equal(t, int64(len(payload)), events[0].Res)
	assert.Equal(t, payload, buf)
}

func TestNativeSharedRingRecognized(t *testing.T) {
	c := newNativeOrSkip(t, Config{Depth: 8})
	r := c.SharedRing()
	require.NotNil(t, r)
	if !r.Recognized() {
		t.Skip("kernel ring layout not recognized")
	}
	assert.GreaterOrEqual(t, r.Nr(), uint32(8))
	assert.Equal(t, 0, r.Read(make([]uapi.IOEvent, 4)))
}
