package main

import (
	"unsafe"

	"github.com/gfpw/microkernelia/internal/arch/amd64"
)

// bufAddr returns the physical address of a static buffer. Every buffer
// this kernel hands to a virtio driver is a package-level array, never
// moved, so the address is stable for the life of the process.
func bufAddr[T any](p *T) uintptr {
	return uintptr(unsafe.Pointer(p))
}

func halt() {
	amd64.Halt()
}
