// Package amd64 wraps the handful of privileged x86_64 instructions the
// kernel needs: port I/O, control-register access, TLB invalidation and
// memory fences — a thin, //go:nosplit-safe boundary around assembly so
// the rest of the kernel never emits inline asm itself.
package amd64

// Outb writes a byte to an I/O port.
//
//go:noescape
func Outb(port uint16, value uint8)

// Inb reads a byte from an I/O port.
//
//go:noescape
func Inb(port uint16) uint8

// Outl writes a 32-bit value to an I/O port.
//
//go:noescape
func Outl(port uint16, value uint32)

// Inl reads a 32-bit value from an I/O port.
//
//go:noescape
func Inl(port uint16) uint32

// LoadCR3 loads the PML4 physical address into CR3, switching the active
// page-table root.
//
//go:noescape
func LoadCR3(pml4Phys uint64)

// ReadCR3 returns the current CR3 value.
//
//go:noescape
func ReadCR3() uint64

// Invlpg invalidates the TLB entry covering the given virtual address.
//
//go:noescape
func Invlpg(addr uintptr)

// MFence is a full (load+store) memory fence: it orders virtqueue
// descriptor/avail-ring writes before the doorbell write that follows
// (spec.md §5).
//
//go:noescape
func MFence()

// Halt executes a single hlt instruction. The panic path spins calling this
// in a loop so the CPU isn't spinning at full power waiting to be reset.
//
//go:noescape
func Halt()

// MmioRead32 reads a 32-bit value from a memory-mapped register.
//
//go:nosplit
func MmioRead32(addr uintptr) uint32 {
	return *(*uint32)(ptr32(addr))
}

// MmioWrite32 writes a 32-bit value to a memory-mapped register.
//
//go:nosplit
func MmioWrite32(addr uintptr, value uint32) {
	*(*uint32)(ptr32(addr)) = value
}
