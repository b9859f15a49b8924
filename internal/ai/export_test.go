package ai

import "unsafe"

// unsafeSlice views the buffer at addr as a []byte, for the fake
// filesystem in ai_test.go to write through the same pointer the adapter
// handed it.
func unsafeSlice(addr uintptr, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
}
