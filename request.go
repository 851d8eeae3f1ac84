package kaio

import (
	"time"

	"github.com/ehrlich-b/go-kaio/internal/interfaces"
)

// File is anything backed by an OS descriptor, such as *os.File.
type File = interfaces.File

// Direction is the kind of I/O a Request performs
type Direction int

const (
	Read Direction = iota
	Write
	Sync     // fsync, completes inline
	DataSync // fdatasync, completes inline
	Trim     // discard, completes inline
)

func (d Direction) String() string {
	switch d {
	case Read:
		return "read"
	case Write:
		return "write"
	case Sync:
		return "sync"
	case DataSync:
		return "datasync"
	case Trim:
		return "trim"
	default:
		return "unknown"
	}
}

// Inline reports whether requests of this direction bypass the ring.
func (d Direction) Inline() bool {
	return d == Sync || d == DataSync || d == Trim
}

// Request is one I/O owned by the caller. The engine only writes the
// result fields (Err, Resid, IssueTime).
//
// Index must be unique per engine and smaller than the engine depth; it
// selects the request's descriptor and resolves its completions.
type Request struct {
	Index  int
	Dir    Direction
	File   File
	Offset int64

	// Buf is the payload for reads and writes. Its length is the transfer
	// length and it must stay valid until the request completes.
	Buf []byte

	// Length is the range length for trims.
	Length int64

	// Err is nil on success. Failed transfers carry an *Error wrapping the
	// errno reported by the kernel.
	Err error

	// Resid is the number of requested bytes not transferred.
	Resid int64

	// IssueTime is when the request was accepted by the context.
	IssueTime time.Time
}

// XferLen returns the number of bytes the request asks to move.
func (r *Request) XferLen() int64 {
	if r.Dir == Trim {
		return r.Length
	}
	return int64(len(r.Buf))
}

// Short reports whether the request completed with fewer bytes than asked.
func (r *Request) Short() bool {
	return r.Err == nil && r.Resid > 0
}

// Done returns the bytes actually transferred.
func (r *Request) Done() int64 {
	return r.XferLen() - r.Resid
}

func (r *Request) reset() {
	r.Err = nil
	r.Resid = 0
}
