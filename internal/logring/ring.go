// Package logring implements the lock-free single-producer,
// single-consumer byte ring spec.md §3/§4 describes for observability: a
// fixed 4 KiB array drained by the dispatcher, fed by every other subsystem's
// log calls. There is exactly one producer (whichever cooperative task is
// currently running — never two at once, by the scheduler's contract) and
// exactly one consumer (the log-flush task, via Drain).
package logring

import (
	"sync/atomic"

	"github.com/gfpw/microkernelia/internal/layout"
)

// Ring is a fixed-capacity SPSC byte ring. The zero value is ready to use.
// head/tail are monotonic total-byte counters (never reduced mod capacity
// themselves) so that "ring full" and "ring empty" remain distinguishable;
// only the buffer index is taken mod capacity.
type Ring struct {
	buf  [layout.LogRingSize]byte
	head atomic.Uint64 // total bytes produced, acquire/release per spec.md §5
	tail atomic.Uint64 // total bytes consumed
}

// Write appends bytes to the ring. When the ring is full it overwrites the
// oldest bytes and advances tail to match — the documented lossy policy
// (spec.md §3): a slow consumer never blocks the producer.
func (r *Ring) Write(data []byte) {
	for _, b := range data {
		head := r.head.Load()
		r.buf[head%layout.LogRingSize] = b
		next := head + 1
		r.head.Store(next)

		if tail := r.tail.Load(); next-tail > layout.LogRingSize {
			r.tail.Store(next - layout.LogRingSize)
		}
	}
}

// WriteString appends the bytes of s; every call site logs a fixed string,
// never arbitrary binary values.
func (r *Ring) WriteString(s string) {
	r.Write([]byte(s))
}

// Drain copies as many buffered bytes as fit into out, in write order, and
// advances the consumer index past what was copied. It returns the number of
// bytes copied. Bytes already drained are never returned again.
func (r *Ring) Drain(out []byte) int {
	tail := r.tail.Load()
	head := r.head.Load()

	n := 0
	for tail != head && n < len(out) {
		out[n] = r.buf[tail%layout.LogRingSize]
		tail++
		n++
	}
	r.tail.Store(tail)
	return n
}
