package aioctx

import "sync/atomic"

var barrierDummy int64

// Mfence issues a full memory fence equivalent.
// atomic.AddInt64 compiles to LOCK XADD on x86-64, which orders all
// earlier loads and stores.
func Mfence() {
	atomic.AddInt64(&barrierDummy, 0)
}
