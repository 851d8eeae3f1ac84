//go:build integration && linux

package kaio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-kaio/internal/logging"
	"github.com/ehrlich-b/go-kaio/internal/queue"
)

// openKernelEngine starts an engine on the real kernel context, skipping
// when the backend is unavailable.
func openKernelEngine(t *testing.T, opts Options, reqs []*Request) IOEngine {
	t.Helper()
	opts.Logger = logging.Nop()
	eng, err := Open(opts, reqs)
	if errors.Is(err, ErrUnsupported) {
		t.Skipf("%s unavailable: %v", opts.Backend, err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { eng.Cleanup() })
	return eng
}

func testKernelRoundTrip(t *testing.T, opts Options) {
	const depth, bs = 8, 4096

	f, err := os.Create(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	defer f.Close()

	arena, err := queue.NewArena(depth, bs)
	require.NoError(t, err)
	defer arena.Close()

	reqs := make([]*Request, depth)
	for i := range reqs {
		reqs[i] = &Request{Index: i, File: f, Buf: arena.Slot(i, bs)}
	}
	opts.Depth = depth
	eng := openKernelEngine(t, opts, reqs)

	for i, req := range reqs {
		copy(req.Buf, pattern(bs, byte(i)))
		req.Dir = Write
		req.Offset = int64(i * bs)
		require.NoError(t, eng.Prepare(req))
		st, err := eng.Enqueue(req)
		require.NoError(t, err)
		require.Equal(t, QueueQueued, st)
	}
	n, err := eng.Commit()
	require.NoError(t, err)
	require.Equal(t, depth, n)

	reaped := 0
	for reaped < depth {
		done, err := eng.PollCompletions(1, depth, Forever)
		require.NoError(t, err)
		for _, req := range done {
			require.NoError(t, req.Err)
			require.Zero(t, req.Resid)
		}
		reaped += len(done)
	}

	sync := reqs[0]
	sync.Dir = DataSync
	require.NoError(t, eng.Prepare(sync))
	st, err := eng.Enqueue(sync)
	require.NoError(t, err)
	assert.Equal(t, QueueCompletedInline, st)
	assert.NoError(t, sync.Err)

	for _, req := range reqs {
		clear(req.Buf)
		req.Dir = Read
		req.Offset = int64(req.Index * bs)
		require.NoError(t, eng.Prepare(req))
		_, err := eng.Enqueue(req)
		require.NoError(t, err)
	}
	reaped = 0
	for reaped < depth {
		done, err := eng.PollCompletions(depth-reaped, depth, Forever)
		require.NoError(t, err)
		for _, req := range done {
			require.NoError(t, req.Err)
			assert.Equal(t, pattern(bs, byte(req.Index)), req.Buf)
		}
		reaped += len(done)
	}

	// past the end of file reads come back empty, not failed
	tail := reqs[1]
	tail.Offset = int64(depth * bs)
	require.NoError(t, eng.Prepare(tail))
	_, err = eng.Enqueue(tail)
	require.NoError(t, err)
	done, err := eng.PollCompletions(1, 1, Forever)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.NoError(t, done[0].Err)
	assert.Equal(t, int64(bs), done[0].Resid)
}

func TestKernelLibaio(t *testing.T) {
	testKernelRoundTrip(t, DefaultOptions())
}

func TestKernelLibaioUserspaceReap(t *testing.T) {
	opts := DefaultOptions()
	opts.UserspaceReap = true
	testKernelRoundTrip(t, opts)
}

func TestKernelIOUring(t *testing.T) {
	opts := DefaultOptions()
	opts.Backend = BackendIOUring
	testKernelRoundTrip(t, opts)
}

func TestKernelTrim(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "sparse"))
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteAt(pattern(8192, 1), 0)
	require.NoError(t, err)

	req := &Request{Index: 0, File: f, Dir: Trim, Offset: 0, Length: 4096}
	eng := openKernelEngine(t, Options{Depth: 1}, []*Request{req})
	require.NoError(t, eng.Prepare(req))
	st, err := eng.Enqueue(req)
	require.NoError(t, err)
	require.Equal(t, QueueCompletedInline, st)
	if errors.Is(req.Err, ErrUnsupported) {
		t.Skip("filesystem cannot punch holes")
	}
	require.NoError(t, req.Err)

	got := make([]byte, 8192)
	_, err = f.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 4096), got[:4096])
	assert.Equal(t, pattern(8192, 1)[4096:], got[4096:])
}
