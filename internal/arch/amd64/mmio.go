package amd64

import "unsafe"

//go:nosplit
func ptr32(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr)
}
