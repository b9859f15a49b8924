package mmu

import "unsafe"

// entryAddr returns t's address as a table-descriptor value, low 12 bits
// clear (page tables are always 4 KiB-aligned since they're array elements
// of a pool, never individually allocated).
func entryAddr(t *PageTable) uint64 {
	return uint64(uintptr(unsafe.Pointer(t)))
}

// addrToPointer is the inverse of entryAddr, used only to walk back into one
// of our own pools. Every address that ever reaches here was produced by
// entryAddr a moment earlier in the same call chain, never derived from
// arbitrary physical memory.
func addrToPointer(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr)
}
