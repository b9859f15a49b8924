// Package frame implements the 2 MiB bitmap physical frame allocator
// (spec.md §3/§4.1). It is a pure leaf: nothing here calls into the MMU,
// per the cyclic-dependency note in spec.md §9, and the MMU does not call
// into this package either.
package frame

import "github.com/gfpw/microkernelia/internal/layout"

// Allocator owns a fixed-capacity bitmap of physical frames. The zero value
// manages layout.MaxFrames frames starting at physical address 0; callers
// that need a different base wrap the returned address.
type Allocator struct {
	used [layout.MaxFrames]bool
}

// Alloc claims the first free frame and returns its physical base address.
// ok is false when the bitmap is full — never aborts (spec.md §4.1).
func (a *Allocator) Alloc() (phys uintptr, ok bool) {
	for i := range a.used {
		if !a.used[i] {
			a.used[i] = true
			return uintptr(i) * layout.FrameSize, true
		}
	}
	return 0, false
}

// Free clears the bit for the frame containing phys. Out-of-range addresses
// and already-free frames are silently ignored (a no-op), matching spec.md §8's
// double-free invariant.
func (a *Allocator) Free(phys uintptr) {
	i := phys / layout.FrameSize
	if i >= layout.MaxFrames {
		return
	}
	a.used[i] = false
}

// AllocAligned finds a contiguous run of free frames covering size bytes,
// claims every frame in the run, and returns a base address rounded up to
// align (a power of two, at most layout.FrameSize). On failure no frame in
// the attempted run is marked used.
func (a *Allocator) AllocAligned(size, align uintptr) (phys uintptr, ok bool) {
	if align == 0 || align&(align-1) != 0 || align > layout.FrameSize {
		return 0, false
	}
	needed := (size + layout.FrameSize - 1) / layout.FrameSize
	if needed == 0 {
		needed = 1
	}

	run := 0
	start := -1
	for i := 0; i < layout.MaxFrames; i++ {
		if !a.used[i] {
			if run == 0 {
				start = i
			}
			run++
			if uintptr(run) == needed {
				for j := start; j < start+run; j++ {
					a.used[j] = true
				}
				base := uintptr(start) * layout.FrameSize
				return (base + align - 1) &^ (align - 1), true
			}
		} else {
			run = 0
			start = -1
		}
	}
	return 0, false
}

// Stats reports how many frames are currently allocated, for diagnostics
// surfaced through the log ring rather than a formal metrics endpoint.
func (a *Allocator) Stats() (allocated, total int) {
	for _, u := range a.used {
		if u {
			allocated++
		}
	}
	return allocated, layout.MaxFrames
}
