// Package pci implements legacy port-I/O PCI configuration-space access and
// the flat device scan used to discover the virtio-vsock and virtio-fs
// devices (spec.md §4.3). Grounded on
// original_source/drivers-virtio/src/lib.rs's pci module, translated from
// port-mapped read_volatile/write_volatile pairs to amd64.Outl/Inl: walk
// bus/slot/func, read vendor/device, match known IDs, over legacy port I/O
// rather than an ECAM-mapped configuration space.
package pci

import (
	"github.com/gfpw/microkernelia/internal/arch/amd64"
	"github.com/gfpw/microkernelia/internal/layout"
)

const (
	regVendorDevice = 0x00
	regCommand      = 0x04
	regBAR0         = 0x10

	commandBusMaster = 1 << 2

	maxBus  = 1
	maxSlot = 32
)

// Device records one discovered virtio-pci function.
type Device struct {
	Bus      uint8
	Slot     uint8
	Func     uint8
	DeviceID uint16
	BAR0     uint32
}

func address(bus, slot, fn uint8, offset uint8) uint32 {
	return (1 << 31) |
		(uint32(bus) << 16) |
		(uint32(slot) << 11) |
		(uint32(fn) << 8) |
		(uint32(offset) & 0xFC)
}

// ReadConfig reads one 32-bit register from PCI configuration space.
func ReadConfig(bus, slot, fn uint8, offset uint8) uint32 {
	amd64.Outl(layout.PCIConfigAddress, address(bus, slot, fn, offset))
	return amd64.Inl(layout.PCIConfigData)
}

// WriteConfig writes one 32-bit register to PCI configuration space.
func WriteConfig(bus, slot, fn uint8, offset uint8, value uint32) {
	amd64.Outl(layout.PCIConfigAddress, address(bus, slot, fn, offset))
	amd64.Outl(layout.PCIConfigData, value)
}

// FindVirtioDevices scans bus 0, every slot, function 0, and returns every
// function whose vendor ID is the virtio vendor, up to layout.MaxVirtioDevices
// entries. Unlike the Rust original this returns a plain slice rather than a
// fixed array of Options, but the scan order and bound are identical.
func FindVirtioDevices() []Device {
	var found []Device
	for bus := uint8(0); bus < maxBus; bus++ {
		for slot := uint8(0); slot < maxSlot; slot++ {
			vendor := ReadConfig(bus, slot, 0, regVendorDevice) & 0xFFFF
			if vendor != layout.VirtioVendorID {
				continue
			}
			device := (ReadConfig(bus, slot, 0, regVendorDevice) >> 16) & 0xFFFF
			bar0 := ReadConfig(bus, slot, 0, regBAR0)
			found = append(found, Device{
				Bus:      bus,
				Slot:     slot,
				Func:     0,
				DeviceID: uint16(device),
				BAR0:     bar0,
			})
			if len(found) >= layout.MaxVirtioDevices {
				return found
			}
		}
	}
	return found
}

// EnableBusMaster sets the PCI command register's bus-master-enable bit,
// required before the device can DMA through its virtqueues.
func EnableBusMaster(bus, slot uint8) {
	cmd := ReadConfig(bus, slot, 0, regCommand)
	cmd |= commandBusMaster
	WriteConfig(bus, slot, 0, regCommand, cmd)
}
