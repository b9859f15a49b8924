// Package transport implements the length-prefixed JSON-RPC framing layered
// over virtio-vsock (spec.md §4.6), grounded on
// original_source/mcp-vsock-transport/src/lib.rs's frame_message/read_frame/
// write_frame. The wire format is unchanged: a 4-byte big-endian length
// prefix followed by that many bytes of JSON.
package transport

import (
	"encoding/binary"

	"github.com/gfpw/microkernelia/internal/layout"
)

const headerLen = 4

// Encode writes json's length-prefixed frame into out and reports the
// number of bytes written. It fails (ok=false) if json exceeds
// layout.MaxFrameLen or out is too small to hold the framed result — the
// same two guards as frame_message in the original source.
func Encode(json []byte, out []byte) (n int, ok bool) {
	if len(json) > layout.MaxFrameLen {
		return 0, false
	}
	if len(out) < len(json)+headerLen {
		return 0, false
	}
	binary.BigEndian.PutUint32(out[0:headerLen], uint32(len(json)))
	copy(out[headerLen:headerLen+len(json)], json)
	return len(json) + headerLen, true
}

// DecodeHeader reads the 4-byte length prefix from the start of buf.
func DecodeHeader(buf []byte) (payloadLen uint32, ok bool) {
	if len(buf) < headerLen {
		return 0, false
	}
	return binary.BigEndian.Uint32(buf[:headerLen]), true
}

// vsockConn is the minimal surface framing needs from a transport driver;
// internal/virtio/vsock.Driver satisfies it once its Send/Recv take
// plain byte slices at the call site (the kernel's boot sequence adapts
// the physical-address-based Driver API to this shape since framing itself
// has no business knowing about virtqueues).
type vsockConn interface {
	Send(data []byte) bool
	Recv(buf []byte) (int, bool)
}

// ReadFrame reads one complete length-prefixed frame from conn into buf,
// returning the JSON payload slice (a view into buf, not a copy). It
// returns ok=false if no frame is currently available, or the declared
// length exceeds layout.MaxFrameLen or the payload bytes actually received.
func ReadFrame(conn vsockConn, buf []byte) (payload []byte, ok bool) {
	n, hasData := conn.Recv(buf)
	if !hasData || n < headerLen {
		return nil, false
	}
	payloadLen, _ := DecodeHeader(buf)
	if payloadLen > layout.MaxFrameLen || int(payloadLen) > n-headerLen {
		return nil, false
	}
	return buf[headerLen : headerLen+int(payloadLen)], true
}

// WriteFrame frames json into scratch and sends it over conn. scratch is
// caller-owned (the boot sequence keeps one static frame buffer rather than
// this function allocating a megabyte-sized array per call).
func WriteFrame(conn vsockConn, json []byte, scratch []byte) bool {
	n, ok := Encode(json, scratch)
	if !ok {
		return false
	}
	return conn.Send(scratch[:n])
}
