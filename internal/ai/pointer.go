package ai

import (
	"unsafe"

	"github.com/gfpw/microkernelia/internal/layout"
)

// bufAddr returns buf's address as a physical buffer address to hand to
// virtio-fs. The model buffer is a static array, never moved, so this
// address stays valid for the adapter's lifetime.
func bufAddr(buf *[layout.MaxModelSize]byte) uintptr {
	return uintptr(unsafe.Pointer(buf))
}
