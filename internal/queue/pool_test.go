package queue

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBuffer_SizeClasses(t *testing.T) {
	tests := []struct {
		name        string
		requestSize uint32
		expectCap   int
	}{
		{"4KB exact", 4096, 4096},
		{"4KB smaller", 3000, 4096},
		{"128KB exact", 128 * 1024, 128 * 1024},
		{"128KB smaller", 65*1024 + 1, 128 * 1024},
		{"1MB smaller", 800 * 1024, 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := GetBuffer(tt.requestSize)
			assert.Len(t, buf, int(tt.requestSize))
			assert.Equal(t, tt.expectCap, cap(buf))
			PutBuffer(buf)
		})
	}
}

func TestPutBuffer_NonStandardCap(t *testing.T) {
	assert.NotPanics(t, func() {
		PutBuffer(make([]byte, 100*1024))
		PutBuffer(nil)
	})
}

func TestArenaSlotsAligned(t *testing.T) {
	a, err := NewArena(4, 1000)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 4096, a.SlotSize())
	assert.Equal(t, 4, a.Slots())
	for i := 0; i < a.Slots(); i++ {
		s := a.Slot(i, 512)
		assert.Len(t, s, 512)
		assert.Equal(t, 4096, cap(s))
		assert.Zero(t, uintptr(unsafe.Pointer(&s[0]))%4096, "slot %d not page aligned", i)
	}

	// slots do not overlap
	a.Slot(0, 4096)[4095] = 0xAA
	assert.Equal(t, byte(0), a.Slot(1, 1)[0])

	assert.Len(t, a.Slot(2, 1<<20), 4096, "slot length is capped at slot size")
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestNewArenaRejectsEmpty(t *testing.T) {
	_, err := NewArena(0, 4096)
	assert.Error(t, err)
}

func BenchmarkGetBuffer_128KB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		PutBuffer(GetBuffer(128 * 1024))
	}
}

func BenchmarkMakeBuffer_128KB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = make([]byte, 128*1024)
	}
}
