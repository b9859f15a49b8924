// Package serial mirrors log-ring bytes out to the host over the legacy
// serial port, one byte at a time, matching spec.md §6.
package serial

import (
	"github.com/gfpw/microkernelia/internal/arch/amd64"
	"github.com/gfpw/microkernelia/internal/layout"
	"github.com/gfpw/microkernelia/internal/logring"
)

// Port is the log sink: every byte logged is both kept in the ring (for
// later `logs` RPC retrieval) and written out the serial port immediately,
// so a host watching the COM1 console sees it live.
type Port struct {
	Ring *logring.Ring
}

// New returns a Port bound to ring. ring must not be nil.
func New(ring *logring.Ring) *Port {
	return &Port{Ring: ring}
}

// Write implements io.Writer-shaped semantics without depending on io, since
// this runs before any heap-backed interface machinery can be assumed safe.
func (p *Port) Write(data []byte) {
	p.Ring.Write(data)
	for _, b := range data {
		amd64.Outb(layout.SerialPort, b)
	}
}

// WriteString is the common call shape: every subsystem logs a line like
// "[virtio-vsock] TX notificado".
func (p *Port) WriteString(s string) {
	p.Write([]byte(s))
}
