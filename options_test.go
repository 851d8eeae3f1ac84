package kaio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name  string
		tune  func(*Options)
		valid bool
	}{
		{"defaults", func(*Options) {}, true},
		{"zero depth", func(o *Options) { o.Depth = 0 }, false},
		{"unknown backend", func(o *Options) { o.Backend = "posixaio" }, false},
		{"io_uring", func(o *Options) { o.Backend = BackendIOUring }, true},
		{"fixed buffers alone", func(o *Options) { o.FixedBuffers = true }, false},
		{"fixed buffers user owned", func(o *Options) { o.FixedBuffers = true; o.UserOwnedDescriptors = true }, true},
		{"negative batch min", func(o *Options) { o.BatchCompleteMin = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.tune(&opts)
			err := opts.validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidParameters), "got %v", err)
			}
		})
	}
}

func TestOptionsContextFlags(t *testing.T) {
	opts := DefaultOptions()
	assert.Zero(t, opts.contextFlags())

	opts.HighPriority = true
	opts.UserOwnedDescriptors = true
	opts.FixedBuffers = true
	assert.Equal(t, uint32(uapi.IOCTX_FLAG_IOPOLL|uapi.IOCTX_FLAG_USERIOCB|uapi.IOCTX_FLAG_FIXEDBUFS), opts.contextFlags())
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, errors.Is(err, ErrInvalidParameters))
}

func TestRequest(t *testing.T) {
	req := &Request{Dir: Write, Buf: make([]byte, 4096)}
	assert.Equal(t, int64(4096), req.XferLen())
	assert.Equal(t, int64(4096), req.Done())
	assert.False(t, req.Short())

	req.Resid = 96
	assert.True(t, req.Short())
	assert.Equal(t, int64(4000), req.Done())

	req.Err = ErrIO
	assert.False(t, req.Short(), "failed requests are not short")

	req.reset()
	assert.NoError(t, req.Err)
	assert.Zero(t, req.Resid)

	trim := &Request{Dir: Trim, Length: 1 << 20}
	assert.Equal(t, int64(1<<20), trim.XferLen())
}

func TestDirection(t *testing.T) {
	tests := []struct {
		dir    Direction
		name   string
		inline bool
	}{
		{Read, "read", false},
		{Write, "write", false},
		{Sync, "sync", true},
		{DataSync, "datasync", true},
		{Trim, "trim", true},
		{Direction(99), "unknown", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.dir.String())
		assert.Equal(t, tt.inline, tt.dir.Inline(), tt.name)
	}
}

func TestQueueStatusString(t *testing.T) {
	assert.Equal(t, "queued", QueueQueued.String())
	assert.Equal(t, "busy", QueueBusy.String())
	assert.Equal(t, "completed", QueueCompletedInline.String())
	assert.Equal(t, "unknown", QueueStatus(7).String())
}
