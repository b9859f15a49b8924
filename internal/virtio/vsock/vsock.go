// Package vsock implements the virtio-vsock driver that carries the JSON-RPC
// control channel (spec.md §4.4). Grounded on
// original_source/drivers-virtio/src/lib.rs's vsock module (init/send/recv
// over a single TX and RX virtqueue), with two corrections per spec.md §9's
// REDESIGN FLAGS:
//
//   - BAR0 is resolved from the actual discovered PCI device and mapped
//     through the MMU instead of a hard-coded placeholder address.
//   - recv no longer decrements Used.Idx (see internal/virtio/queue's doc
//     comment for why); it pops the queue's shadow-counted used ring
//     instead.
package vsock

import (
	"github.com/gfpw/microkernelia/internal/arch/amd64"
	"github.com/gfpw/microkernelia/internal/layout"
	"github.com/gfpw/microkernelia/internal/logring"
	"github.com/gfpw/microkernelia/internal/memory/mmu"
	"github.com/gfpw/microkernelia/internal/pci"
	"github.com/gfpw/microkernelia/internal/virtio/queue"
)

// Driver owns the vsock device's TX/RX virtqueues and its mapped BAR0.
type Driver struct {
	tx   *queue.Queue
	rx   *queue.Queue
	bar0 uintptr
	log  *logring.Ring
	dev  pci.Device
	ok   bool
}

// New constructs a Driver bound to log for diagnostics. The driver is not
// usable until Init succeeds.
func New(log *logring.Ring) *Driver {
	return &Driver{log: log}
}

func isVsockDevice(id uint16) bool {
	return id == layout.VirtioVsockDevice1 || id == layout.VirtioVsockDevice2
}

// Init scans for the vsock device, enables bus mastering, maps its BAR0
// through m, and sets up one TX and one RX queue. It is idempotent to call
// more than once only in the sense that it re-scans and re-binds; queues are
// reallocated each time, so callers should call it exactly once at boot.
func (d *Driver) Init(m *mmu.MMU) bool {
	d.log.WriteString("[virtio-vsock] Inicializando driver vsock")
	for _, dev := range pci.FindVirtioDevices() {
		if !isVsockDevice(dev.DeviceID) {
			continue
		}
		pci.EnableBusMaster(dev.Bus, dev.Slot)
		d.dev = dev
		d.bar0 = m.MapMMIORegion(uintptr(dev.BAR0), layout.VirtioBar0Size)
		d.tx = queue.New(layout.MaxVirtqSize)
		d.rx = queue.New(layout.MaxVirtqSize)
		d.ok = true
		return true
	}
	return false
}

func (d *Driver) notify() {
	amd64.MmioWrite32(d.bar0+layout.VirtioNotifyOffset, 1)
}

// Send publishes data on the TX queue and rings the device doorbell.
// addr is the physical address of the buffer backing data; the caller is
// responsible for the buffer's lifetime until the device consumes it.
func (d *Driver) Send(addr uintptr, data []byte) bool {
	if !d.ok {
		return false
	}
	d.tx.Push(uint64(addr), uint32(len(data)), 0)
	amd64.MFence()
	d.notify()
	d.log.WriteString("[virtio-vsock] TX notificado")
	return true
}

// Recv pops one completed RX descriptor, if any, returning the address and
// length the device reported.
func (d *Driver) Recv() (addr uintptr, length uint32, ok bool) {
	if !d.ok {
		return 0, 0, false
	}
	elem, hasUsed := d.rx.PopUsed()
	if !hasUsed {
		return 0, 0, false
	}
	desc := d.rx.Desc[elem.ID%uint32(d.rx.Size)]
	d.log.WriteString("[virtio-vsock] RX consumido")
	return uintptr(desc.Addr), elem.Len, true
}

// PostRecvBuffer makes addr available to the device for an incoming
// message. Call this once per buffer before the device can fill it.
func (d *Driver) PostRecvBuffer(addr uintptr, capacity uint32) {
	if !d.ok {
		return
	}
	d.rx.Push(uint64(addr), capacity, queue.DescFWrite)
}

// Ready reports whether Init found and bound a device.
func (d *Driver) Ready() bool {
	return d.ok
}
