// Package backend provides in-memory I/O targets for simulated contexts
package backend

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/go-kaio/internal/interfaces"
)

// synthetic descriptors start well above anything the process opens
var nextFd atomic.Uintptr

func init() {
	nextFd.Store(1 << 20)
}

// Memory is a RAM-backed target addressed through a synthetic descriptor
type Memory struct {
	data []byte
	size int64
	fd   uintptr
	mu   sync.RWMutex

	flushes  atomic.Uint64
	discards atomic.Uint64
}

// NewMemory creates a new memory target of the specified size
func NewMemory(size int64) *Memory {
	return &Memory{
		data: make([]byte, size),
		size: size,
		fd:   nextFd.Add(1),
	}
}

// Fd returns the synthetic descriptor identifying this target
func (m *Memory) Fd() uintptr {
	return m.fd
}

// ReadAt reads into p at off. Reads crossing the end of the target are
// short; reads at or past the end return 0.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= m.size {
		return 0, nil
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	return copy(p, m.data[off:off+int64(len(p))]), nil
}

// WriteAt writes p at off. Writes crossing the end are truncated.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 || off >= m.size {
		return 0, fmt.Errorf("write beyond end of target")
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	return copy(m.data[off:off+int64(len(p))], p), nil
}

// Size returns the target size in bytes
func (m *Memory) Size() int64 {
	return m.size
}

// Close drops the backing memory
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	m.size = 0
	return nil
}

// Flush counts a flush; memory needs no write-back
func (m *Memory) Flush() error {
	m.flushes.Add(1)
	return nil
}

// Discard zeroes the given range
func (m *Memory) Discard(offset, length int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discards.Add(1)
	if offset >= m.size {
		return nil
	}

	end := offset + length
	if end > m.size {
		end = m.size
	}
	clear(m.data[offset:end])
	return nil
}

// Stats returns counters for tests and diagnostics
func (m *Memory) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"type":      "memory",
		"fd":        m.fd,
		"size":      m.size,
		"allocated": len(m.data),
		"flushes":   m.flushes.Load(),
		"discards":  m.discards.Load(),
	}
}

// Flushes returns how many times Flush was called
func (m *Memory) Flushes() uint64 {
	return m.flushes.Load()
}

// Discards returns how many times Discard was called
func (m *Memory) Discards() uint64 {
	return m.discards.Load()
}

var _ interfaces.Target = (*Memory)(nil)
