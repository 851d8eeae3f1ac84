package aioctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

func TestEmulatedRingRecognized(t *testing.T) {
	r := EmulatedRing(4)
	assert.True(t, r.Recognized())
	assert.Equal(t, uint32(5), r.Nr())

	var nilRing *SharedRing
	assert.False(t, nilRing.Recognized())

	r.header().Magic = 0
	assert.False(t, r.Recognized(), "unknown magic must not be read directly")
}

func TestSharedRingReadAdvancesHead(t *testing.T) {
	r := EmulatedRing(4)
	for i := uint64(0); i < 3; i++ {
		require.True(t, r.Post(uapi.IOEvent{Data: i, Res: int64(i * 10)}))
	}
	assert.Equal(t, uint32(3), r.Pending())

	events := make([]uapi.IOEvent, 2)
	n := r.Read(events)
	require.Equal(t, 2, n)
	assert.Equal(t, uint64(0), events[0].Data)
	assert.Equal(t, int64(10), events[1].Res)
	assert.Equal(t, uint32(2), r.header().Head)
	assert.Equal(t, uint32(1), r.Pending())

	n = r.Read(events)
	require.Equal(t, 1, n)
	assert.Equal(t, uint64(2), events[0].Data)

	assert.Equal(t, 0, r.Read(events), "empty ring reads nothing")
}

func TestSharedRingWraps(t *testing.T) {
	r := EmulatedRing(2)
	events := make([]uapi.IOEvent, 8)
	next := uint64(0)
	for round := 0; round < 10; round++ {
		require.True(t, r.Post(uapi.IOEvent{Data: next}))
		require.True(t, r.Post(uapi.IOEvent{Data: next + 1}))
		assert.False(t, r.Post(uapi.IOEvent{}), "ring should be full")

		n := r.Read(events)
		require.Equal(t, 2, n)
		assert.Equal(t, next, events[0].Data)
		assert.Equal(t, next+1, events[1].Data)
		next += 2
	}
}
