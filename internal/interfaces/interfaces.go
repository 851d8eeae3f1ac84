package interfaces

import "io"

// File is anything backed by an OS descriptor the engine can address.
// *os.File satisfies it.
type File interface {
	Fd() uintptr
}

// Syncer flushes a file inline, outside the submission ring.
type Syncer interface {
	// Sync flushes f. With dataOnly set only data and the metadata needed
	// to read it back are flushed (fdatasync semantics).
	Sync(f File, dataOnly bool) error
}

// Trimmer discards a byte range inline, outside the submission ring.
type Trimmer interface {
	Trim(f File, offset, length int64) error
}

// Target is an addressable device a simulated context performs I/O on.
// It mirrors io.ReaderAt and io.WriterAt: a read at the end of the
// device may return fewer bytes than requested without an error.
type Target interface {
	File
	io.ReaderAt
	io.WriterAt

	// Size returns the size of the target in bytes.
	Size() int64

	// Flush makes previous writes durable.
	Flush() error

	// Discard zeroes the given range.
	Discard(offset, length int64) error
}
