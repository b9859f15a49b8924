// Package queue implements the virtio split virtqueue (descriptor table,
// available ring, used ring) from the guest-driver side: this kernel owns
// the backing arrays, not a hypervisor reading someone else's guest memory.
// Struct layout and alignment are grounded on
// original_source/drivers-virtio/src/lib.rs (VirtqDesc/VirtqAvail/VirtqUsed);
// the rings are plain Go structs with no byte-level encode/decode helpers.
// The index bookkeeping style mirrors
// tinyrange-cc/internal/devices/virtio/queue.go's ReadDescriptor/
// GetAvailableBuffer/PutUsedBuffer, adapted from "device reads guest memory
// over an interface" to "driver owns the rings directly."
//
// This corrects the REDESIGN FLAG in spec.md §9: the original recv()
// consumed the used ring by decrementing used.idx, which both races the
// device (which only ever increments it) and double-counts entries when two
// are posted between polls. We track how many used entries we've already
// consumed in a local shadow counter instead, the same pattern
// tinyrange-cc's queue.go uses for its avail-side lastAvailIdx.
package queue

import "github.com/gfpw/microkernelia/internal/layout"

// VirtqDesc is one descriptor table entry, 16-byte aligned.
type VirtqDesc struct {
	Addr  uint64
	Len   uint32
	Flags uint16
	Next  uint16
}

const (
	DescFNext  uint16 = 1 << 0
	DescFWrite uint16 = 1 << 1
)

// VirtqAvail is the available ring, 2-byte aligned.
type VirtqAvail struct {
	Flags uint16
	Idx   uint16
	Ring  [layout.MaxVirtqSize]uint16
}

// VirtqUsedElem is one used ring entry.
type VirtqUsedElem struct {
	ID  uint32
	Len uint32
}

// VirtqUsed is the used ring, 4-byte aligned.
type VirtqUsed struct {
	Flags uint16
	Idx   uint16
	Ring  [layout.MaxVirtqSize]VirtqUsedElem
}

// Queue is one virtqueue's three rings plus the driver-side bookkeeping
// needed to walk them correctly.
type Queue struct {
	Desc  [layout.MaxVirtqSize]VirtqDesc
	Avail VirtqAvail
	Used  VirtqUsed
	Size  uint16

	// lastUsedSeen is how many used entries this driver has already
	// consumed. The device only ever increments Used.Idx; comparing
	// against this shadow counter instead of mutating Used.Idx is what
	// keeps consumption from racing or double-counting the device.
	lastUsedSeen uint16
}

// New returns a queue of the given size (must be <= layout.MaxVirtqSize).
func New(size uint16) *Queue {
	if size > layout.MaxVirtqSize {
		size = layout.MaxVirtqSize
	}
	return &Queue{Size: size}
}

// Push places a single-buffer descriptor chain at the next avail slot and
// publishes it to the device. It returns the descriptor index used, so the
// caller can correlate a later used entry back to this buffer.
func (q *Queue) Push(addr uint64, length uint32, flags uint16) uint16 {
	descIdx := q.Avail.Idx % q.Size
	q.Desc[descIdx] = VirtqDesc{Addr: addr, Len: length, Flags: flags, Next: 0}

	ringIdx := q.Avail.Idx % q.Size
	q.Avail.Ring[ringIdx] = descIdx
	q.Avail.Idx++
	return descIdx
}

// PopUsed returns the next unconsumed used-ring entry, if any, and advances
// this driver's shadow counter. It never touches Used.Idx, which the device
// owns exclusively.
func (q *Queue) PopUsed() (elem VirtqUsedElem, ok bool) {
	if q.lastUsedSeen == q.Used.Idx {
		return VirtqUsedElem{}, false
	}
	ringIdx := q.lastUsedSeen % q.Size
	elem = q.Used.Ring[ringIdx]
	q.lastUsedSeen++
	return elem, true
}

// Pending reports how many used entries are waiting to be popped.
func (q *Queue) Pending() uint16 {
	return q.Used.Idx - q.lastUsedSeen
}
