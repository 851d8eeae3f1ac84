package queue

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-kaio/internal/uapi"
)

const iocbSize = int(unsafe.Sizeof(uapi.IOCB{}))

// DescriptorPool is the fixed array of submission descriptors, one per
// ring slot. In mapped mode the array lives in page-aligned anonymous
// memory so it can be handed to the kernel as user-owned iocbs.
type DescriptorPool struct {
	iocbs  []uapi.IOCB
	mapped []byte
}

// NewDescriptorPool allocates depth descriptors. Descriptor i carries i in
// its data field so completions can be resolved without address math.
func NewDescriptorPool(depth int, mapped bool) (*DescriptorPool, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("descriptor pool depth must be positive, got %d", depth)
	}
	p := &DescriptorPool{}
	if mapped {
		pageSize := unix.Getpagesize()
		size := (depth*iocbSize + pageSize - 1) &^ (pageSize - 1)
		mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			return nil, fmt.Errorf("failed to map descriptors: %w", err)
		}
		p.mapped = mem
		p.iocbs = unsafe.Slice((*uapi.IOCB)(unsafe.Pointer(&mem[0])), depth)
	} else {
		p.iocbs = make([]uapi.IOCB, depth)
	}
	for i := range p.iocbs {
		p.iocbs[i].Data = uint64(i)
	}
	return p, nil
}

// At returns descriptor i.
func (p *DescriptorPool) At(i int) *uapi.IOCB {
	return &p.iocbs[i]
}

// Descriptors exposes the backing array, for contexts that need the
// user-owned array at setup.
func (p *DescriptorPool) Descriptors() []uapi.IOCB {
	return p.iocbs
}

// Len returns the pool depth.
func (p *DescriptorPool) Len() int {
	return len(p.iocbs)
}

// Mapped reports whether the array lives in mapped memory.
func (p *DescriptorPool) Mapped() bool {
	return p.mapped != nil
}

// Close releases mapped memory.
func (p *DescriptorPool) Close() error {
	if p.mapped == nil {
		return nil
	}
	err := unix.Munmap(p.mapped)
	p.mapped = nil
	p.iocbs = nil
	return err
}

// IndexTable maps a stable request index to its owner.
type IndexTable[T any] struct {
	entries []T
	set     []bool
}

// NewIndexTable returns a table with room for size indices.
func NewIndexTable[T any](size int) *IndexTable[T] {
	return &IndexTable[T]{
		entries: make([]T, size),
		set:     make([]bool, size),
	}
}

// Register binds index to v. An index may be bound once.
func (t *IndexTable[T]) Register(index int, v T) error {
	if index < 0 || index >= len(t.entries) {
		return fmt.Errorf("index %d out of range [0,%d)", index, len(t.entries))
	}
	if t.set[index] {
		return fmt.Errorf("index %d already registered", index)
	}
	t.entries[index] = v
	t.set[index] = true
	return nil
}

// Lookup resolves index.
func (t *IndexTable[T]) Lookup(index uint64) (T, bool) {
	var zero T
	if index >= uint64(len(t.entries)) || !t.set[index] {
		return zero, false
	}
	return t.entries[index], true
}

// Len returns the number of registered indices.
func (t *IndexTable[T]) Len() int {
	n := 0
	for _, ok := range t.set {
		if ok {
			n++
		}
	}
	return n
}
