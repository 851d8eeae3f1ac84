package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemory(t *testing.T) {
	a := NewMemory(1024)
	b := NewMemory(1024)

	assert.Equal(t, int64(1024), a.Size())
	assert.Len(t, a.data, 1024)
	assert.NotEqual(t, a.Fd(), b.Fd(), "targets need distinct descriptors")
	assert.Greater(t, a.Fd(), uintptr(1<<20))
}

func TestMemoryReadWrite(t *testing.T) {
	mem := NewMemory(1024)
	defer mem.Close()

	payload := []byte("Hello, kaio!")
	n, err := mem.WriteAt(payload, 100)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	n, err = mem.ReadAt(buf, 100)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)
}

func TestMemoryBoundaryConditions(t *testing.T) {
	tests := []struct {
		name    string
		off     int64
		length  int
		wantN   int
		wantErr bool
		write   bool
	}{
		{"read crossing end is short", 80, 50, 20, false, false},
		{"read at end", 100, 10, 0, false, false},
		{"read past end", 500, 10, 0, false, false},
		{"negative read", -1, 10, 0, true, false},
		{"write crossing end truncated", 90, 20, 10, false, true},
		{"write at end", 100, 1, 0, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := NewMemory(100)
			buf := make([]byte, tt.length)
			var n int
			var err error
			if tt.write {
				n, err = mem.WriteAt(buf, tt.off)
			} else {
				n, err = mem.ReadAt(buf, tt.off)
			}
			assert.Equal(t, tt.wantN, n)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestMemoryDiscardAndFlush(t *testing.T) {
	mem := NewMemory(100)
	_, err := mem.WriteAt([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0)
	require.NoError(t, err)

	require.NoError(t, mem.Discard(2, 5))
	buf := make([]byte, 10)
	_, err = mem.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 0, 0, 0, 0, 0, 8, 9, 10}, buf)

	require.NoError(t, mem.Discard(95, 100), "discard past end is clipped")
	require.NoError(t, mem.Discard(200, 10))
	assert.Equal(t, uint64(3), mem.Discards())

	require.NoError(t, mem.Flush())
	assert.Equal(t, uint64(1), mem.Flushes())

	stats := mem.Stats()
	assert.Equal(t, "memory", stats["type"])
	assert.Equal(t, uint64(1), stats["flushes"])
}

func BenchmarkMemoryRead(b *testing.B) {
	mem := NewMemory(64 << 20)
	buf := make([]byte, 4096)
	b.SetBytes(4096)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mem.ReadAt(buf, int64(i%16384)*4096)
	}
}

func BenchmarkMemoryWrite(b *testing.B) {
	mem := NewMemory(64 << 20)
	buf := make([]byte, 4096)
	b.SetBytes(4096)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mem.WriteAt(buf, int64(i%16384)*4096)
	}
}
