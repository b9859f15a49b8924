// Package mmu builds and maintains the kernel's x86_64 page tables: the
// identity + high-half + MMIO-window layout, W^X section protection, guard
// pages and the stack canary (spec.md §3/§4.2).
//
// Next-level tables are bump-allocated on demand from fixed-address pools
// as walkCreate descends PML4 -> PDPT -> PD, generalized from a four-level
// x86_64 hierarchy to a bump-allocated PDPT/PD/PT pool per level. This
// resolves the REDESIGN FLAG in spec.md §9 about `map_phys_to_virt` reusing
// one index for two different table levels: bump-allocating each level's
// table independently, keyed by its own index, makes that class of bug
// structurally impossible instead of patching one instance of it.
package mmu

import (
	"github.com/gfpw/microkernelia/internal/arch/amd64"
	"github.com/gfpw/microkernelia/internal/layout"
)

// Page table entry bits (spec.md §3).
const (
	PTEPresent  uint64 = 1 << 0
	PTEWritable uint64 = 1 << 1
	PTEHuge     uint64 = 1 << 7 // 2 MiB mapping, PD level only
	PTENX       uint64 = 1 << 63

	hugePageSize = 2 * 1024 * 1024
	pageSize     = layout.PageSize4K
	addrMask     = uint64(0x000F_FFFF_FFFF_F000) // bits 12-51; drops flags and NX
)

// PageTable is one 4 KiB, 512-entry level of the hierarchy.
type PageTable struct {
	Entries [layout.PML4Entries]uint64
}

// Section describes a half-open [Start, End) virtual range, the unit
// mmu_protect_sections and mapRegion operate on (spec.md §3).
type Section struct {
	Start uintptr
	End   uintptr
}

// pool sizes are deliberately small and fixed: this kernel maps a handful of
// regions (low-1GiB identity, one high-half kernel window, a few MMIO BARs),
// never an open-ended number, so a bump allocator over fixed arrays needs no
// free list.
const (
	maxPDPT = 4
	maxPD   = 16
	maxPT   = 16
)

// MMU owns every page table and the bump allocators backing them. The zero
// value is usable directly (as tests do); New wires the production TLB-flush
// hook.
type MMU struct {
	PML4 PageTable

	pdptPool [maxPDPT]PageTable
	pdptUsed int

	pdPool [maxPD]PageTable
	pdUsed int

	ptPool [maxPT]PageTable
	ptUsed int

	mmioNext uintptr

	// flush is called once per newly-mapped or newly-unmapped 4 KiB page.
	// nil (the zero value, used by tests) skips the hardware TLB
	// invalidation, since host tests have no such TLB to flush.
	flush func(uintptr)
}

// New returns an MMU wired to invalidate the real TLB as pages are mapped.
func New() *MMU {
	return &MMU{flush: amd64.Invlpg}
}

func (m *MMU) doFlush(va uintptr) {
	if m.flush != nil {
		m.flush(va)
	}
}

func pml4Index(va uintptr) uint64 { return (uint64(va) >> 39) & 0x1FF }
func pdptIndex(va uintptr) uint64 { return (uint64(va) >> 30) & 0x1FF }
func pdIndex(va uintptr) uint64   { return (uint64(va) >> 21) & 0x1FF }
func ptIndex(va uintptr) uint64   { return (uint64(va) >> 12) & 0x1FF }

func tableAddr(entry uint64) uintptr { return uintptr(entry & addrMask) }
func present(entry uint64) bool      { return entry&PTEPresent != 0 }

func (m *MMU) allocPDPT() *PageTable {
	t := &m.pdptPool[m.pdptUsed]
	m.pdptUsed++
	return t
}

func (m *MMU) allocPD() *PageTable {
	t := &m.pdPool[m.pdUsed]
	m.pdUsed++
	return t
}

func (m *MMU) allocPT() *PageTable {
	t := &m.ptPool[m.ptUsed]
	m.ptUsed++
	return t
}

// tableFromAddr resolves a table-descriptor entry's address back to the
// in-pool *PageTable it refers to. Because every table we ever point at
// comes from one of our own pools, this is a safe reverse lookup rather than
// an arbitrary pointer cast over physical memory.
func (m *MMU) tableFromAddr(addr uintptr) *PageTable {
	return (*PageTable)(addrToPointer(addr))
}

// Init builds the identity map for the low 1 GiB and the high-half kernel
// map, per spec.md §4.2 steps 1-3. PML4 entry 0 is left permanently absent:
// per the spec's literal description (and the Rust original it was
// distilled from), the low-1GiB identity map is wired under its own
// PDPT/PD tables but PML4[0] itself is never marked present, which is the
// testable invariant spec.md §8 pins ("PML4[0] is never present"). See
// DESIGN.md for why this is kept as described rather than "fixed": the
// REDESIGN FLAGS in spec.md §9 enumerate four specific bugs to correct and
// this structural point isn't one of them.
//
// Step 4 of spec.md §4.2's mmu_init ("load CR3 with the PML4 physical
// address") is deliberately left to the caller via LoadCR3 rather than
// folded in here: tests construct a zero-value MMU and call Init directly
// on a hosted process that has no business executing a privileged MOV CR3,
// and LoadCR3 itself has no such guard. cmd/unikernel's boot sequence
// calls LoadCR3 right after Init.
func (m *MMU) Init() {
	m.PML4.Entries[0] = 0

	identityPDPT := m.allocPDPT()
	identityPD := m.allocPD()
	identityPDPT.Entries[0] = entryAddr(identityPD) | PTEPresent | PTEWritable
	for i := 1; i < layout.PML4Entries; i++ {
		identityPD.Entries[i] = (uint64(i) << 21) | PTEPresent | PTEWritable | PTEHuge
	}
	// identityPD.Entries[0] stays 0: VA 0 is never mapped present.

	pml4Idx := pml4Index(layout.KernelVirtBase)
	kernelPDPT := m.allocPDPT()
	kernelPD := m.allocPD()
	m.PML4.Entries[pml4Idx] = entryAddr(kernelPDPT) | PTEPresent | PTEWritable
	kernelPDPT.Entries[0] = entryAddr(kernelPD) | PTEPresent | PTEWritable
	for i := 0; i < layout.PML4Entries; i++ {
		kernelPD.Entries[i] = (uint64(i) << 21) | PTEPresent | PTEWritable | PTEHuge
	}
}

// LoadCR3 activates this MMU's page tables.
func (m *MMU) LoadCR3() {
	amd64.LoadCR3(uint64(entryAddr(&m.PML4)))
}

// walkCreate descends PML4 -> PDPT -> PD, allocating any missing
// intermediate table, and returns the PD entry's table-level pointer and
// index so the caller can install either a 2 MiB huge entry or descend
// further into a PT for a 4 KiB entry.
func (m *MMU) walkCreate(va uintptr) (pd *PageTable, pdIdx uint64) {
	p4 := pml4Index(va)
	pdpIdx := pdptIndex(va)
	pdIdx = pdIndex(va)

	if !present(m.PML4.Entries[p4]) {
		t := m.allocPDPT()
		m.PML4.Entries[p4] = entryAddr(t) | PTEPresent | PTEWritable
	}
	pdpt := m.tableFromAddr(tableAddr(m.PML4.Entries[p4]))

	if !present(pdpt.Entries[pdpIdx]) {
		t := m.allocPD()
		pdpt.Entries[pdpIdx] = entryAddr(t) | PTEPresent | PTEWritable
	}
	pd = m.tableFromAddr(tableAddr(pdpt.Entries[pdpIdx]))
	return pd, pdIdx
}

// MapPhysToVirt identity-maps [phys, phys+size) (spec.md §4.2), preferring 2
// MiB huge entries and falling back to 4 KiB entries for any part of the
// range that isn't 2 MiB-aligned. Repeated calls over the same range are
// idempotent in outcome: mapping an already-present page just overwrites it
// with the same value.
func (m *MMU) MapPhysToVirt(phys, size uintptr) uintptr {
	var offset uintptr
	for offset < size {
		va := phys + offset
		pd, idx := m.walkCreate(va)

		if va&(hugePageSize-1) == 0 && size-offset >= hugePageSize {
			pd.Entries[idx] = uint64(va) | PTEPresent | PTEWritable | PTEHuge
			m.doFlush(va)
			offset += hugePageSize
			continue
		}

		if !(pd.Entries[idx]&PTEHuge == 0 && present(pd.Entries[idx])) {
			pt := m.allocPT()
			pd.Entries[idx] = entryAddr(pt) | PTEPresent | PTEWritable
		}
		pt := m.tableFromAddr(tableAddr(pd.Entries[idx]))
		pt.Entries[ptIndex(va)] = uint64(va) | PTEPresent | PTEWritable
		m.doFlush(va)
		offset += pageSize
	}
	return phys
}

// MapMMIORegion allocates a bump-pointer window from the dedicated MMIO VA
// range and maps phys there with NX forced (spec.md §4.2): MMIO is never
// executable.
func (m *MMU) MapMMIORegion(phys, size uintptr) uintptr {
	if m.mmioNext == 0 {
		m.mmioNext = layout.MMIOWindowBase
	}
	aligned := (size + hugePageSize - 1) &^ (hugePageSize - 1)
	base := m.mmioNext
	m.mmioNext += aligned

	for off := uintptr(0); off < aligned; off += hugePageSize {
		va := base + off
		pd, idx := m.walkCreate(va)
		pd.Entries[idx] = uint64(phys+off) | PTEPresent | PTEWritable | PTEHuge | PTENX
		m.doFlush(va)
	}
	return base
}

// UnmapPhysRegion clears every entry covering [virt, virt+size), consistently
// keyed by the virtual address throughout — the REDESIGN FLAG in spec.md §9
// about mixing `vaddr` and a separately-computed `phys+offset` as the lookup
// key doesn't apply here because there is only ever one address in play.
func (m *MMU) UnmapPhysRegion(virt, size uintptr) {
	var offset uintptr
	for offset < size {
		va := virt + offset
		p4 := pml4Index(va)
		if !present(m.PML4.Entries[p4]) {
			offset += pageSize
			continue
		}
		pdpt := m.tableFromAddr(tableAddr(m.PML4.Entries[p4]))
		pdpIdx := pdptIndex(va)
		if !present(pdpt.Entries[pdpIdx]) {
			offset += pageSize
			continue
		}
		pd := m.tableFromAddr(tableAddr(pdpt.Entries[pdpIdx]))
		pIdx := pdIndex(va)
		entry := pd.Entries[pIdx]
		if !present(entry) {
			offset += pageSize
			continue
		}
		if entry&PTEHuge != 0 {
			pd.Entries[pIdx] = 0
			m.doFlush(va)
			offset += hugePageSize
			continue
		}
		pt := m.tableFromAddr(tableAddr(entry))
		pt.Entries[ptIndex(va)] = 0
		m.doFlush(va)
		offset += pageSize
	}
}

// ProtectSections enforces W^X (spec.md §4.2): text keeps NX clear (it must
// stay executable); data, bss and stack get NX set. It works at PD
// granularity: each present PD entry covering a section is updated, whether
// it is a 2 MiB huge mapping or points at a 4 KiB page table (as the stack's
// does after MapStack4K). Absent entries are skipped.
func (m *MMU) ProtectSections(text, data, bss, stack Section) {
	m.setNXRange(text, false)
	m.setNXRange(data, true)
	m.setNXRange(bss, true)
	m.setNXRange(stack, true)
}

func (m *MMU) setNXRange(s Section, nx bool) {
	for va := s.Start &^ (hugePageSize - 1); va < s.End; va += hugePageSize {
		p4 := pml4Index(va)
		if !present(m.PML4.Entries[p4]) {
			continue
		}
		pdpt := m.tableFromAddr(tableAddr(m.PML4.Entries[p4]))
		pdpIdx := pdptIndex(va)
		if !present(pdpt.Entries[pdpIdx]) {
			continue
		}
		pd := m.tableFromAddr(tableAddr(pdpt.Entries[pdpIdx]))
		idx := pdIndex(va)
		if !present(pd.Entries[idx]) {
			continue
		}
		if nx {
			pd.Entries[idx] |= PTENX
		} else {
			pd.Entries[idx] &^= PTENX
		}
	}
}

// TextIsExecutable reports whether every PD entry covering s has NX clear —
// the half of the W^X invariant tests check directly.
func (m *MMU) TextIsExecutable(s Section) bool {
	return !m.anyNXSet(s) && m.anyPresent(s)
}

// SectionIsNX reports whether every PD entry covering s is present and has
// NX set; an absent entry makes it return false.
func (m *MMU) SectionIsNX(s Section) bool {
	for va := s.Start &^ (hugePageSize - 1); va < s.End; va += hugePageSize {
		p4 := pml4Index(va)
		if !present(m.PML4.Entries[p4]) {
			return false
		}
		pdpt := m.tableFromAddr(tableAddr(m.PML4.Entries[p4]))
		pd := m.tableFromAddr(tableAddr(pdpt.Entries[pdptIndex(va)]))
		idx := pdIndex(va)
		if !present(pd.Entries[idx]) || pd.Entries[idx]&PTENX == 0 {
			return false
		}
	}
	return true
}

func (m *MMU) anyNXSet(s Section) bool {
	for va := s.Start &^ (hugePageSize - 1); va < s.End; va += hugePageSize {
		p4 := pml4Index(va)
		if !present(m.PML4.Entries[p4]) {
			continue
		}
		pdpt := m.tableFromAddr(tableAddr(m.PML4.Entries[p4]))
		pd := m.tableFromAddr(tableAddr(pdpt.Entries[pdptIndex(va)]))
		idx := pdIndex(va)
		if present(pd.Entries[idx]) && pd.Entries[idx]&PTENX != 0 {
			return true
		}
	}
	return false
}

func (m *MMU) anyPresent(s Section) bool {
	for va := s.Start &^ (hugePageSize - 1); va < s.End; va += hugePageSize {
		p4 := pml4Index(va)
		if !present(m.PML4.Entries[p4]) {
			continue
		}
		pdpt := m.tableFromAddr(tableAddr(m.PML4.Entries[p4]))
		pd := m.tableFromAddr(tableAddr(pdpt.Entries[pdptIndex(va)]))
		if present(pd.Entries[pdIndex(va)]) {
			return true
		}
	}
	return false
}

// InsertGuardPage clears the present bit for the 4 KiB page at addr
// (spec.md §4.2). When addr is mapped with a 4 KiB entry (the stack region
// is mapped that way precisely so the guard page can be this precise), only
// that page is cleared; when addr lies in a 2 MiB huge mapping, the whole
// huge entry is cleared.
func (m *MMU) InsertGuardPage(addr uintptr) {
	va := addr &^ (pageSize - 1)
	p4 := pml4Index(va)
	if !present(m.PML4.Entries[p4]) {
		return
	}
	pdpt := m.tableFromAddr(tableAddr(m.PML4.Entries[p4]))
	pdpIdx := pdptIndex(va)
	if !present(pdpt.Entries[pdpIdx]) {
		return
	}
	pd := m.tableFromAddr(tableAddr(pdpt.Entries[pdpIdx]))
	idx := pdIndex(va)
	entry := pd.Entries[idx]
	if entry&PTEHuge != 0 {
		pd.Entries[idx] = 0
		m.doFlush(va)
		return
	}
	if !present(entry) {
		return
	}
	pt := m.tableFromAddr(tableAddr(entry))
	pt.Entries[ptIndex(va)] = 0
	m.doFlush(va)
}

// IsPresent reports whether addr currently has a present leaf mapping,
// walking huge and 4 KiB levels as appropriate. Used by tests and by the
// guard-page scenario in spec.md §8.
func (m *MMU) IsPresent(addr uintptr) bool {
	va := addr &^ (pageSize - 1)
	p4 := pml4Index(va)
	if !present(m.PML4.Entries[p4]) {
		return false
	}
	pdpt := m.tableFromAddr(tableAddr(m.PML4.Entries[p4]))
	pdpIdx := pdptIndex(va)
	if !present(pdpt.Entries[pdpIdx]) {
		return false
	}
	pd := m.tableFromAddr(tableAddr(pdpt.Entries[pdpIdx]))
	idx := pdIndex(va)
	entry := pd.Entries[idx]
	if entry&PTEHuge != 0 {
		return present(entry)
	}
	if !present(entry) {
		return false
	}
	pt := m.tableFromAddr(tableAddr(entry))
	return present(pt.Entries[ptIndex(va)])
}

// MapStack4K maps a region with plain 4 KiB entries regardless of alignment,
// used for the stack so InsertGuardPage can clear exactly one page at the
// top.
func (m *MMU) MapStack4K(phys, size uintptr) {
	for off := uintptr(0); off < size; off += pageSize {
		va := phys + off
		pd, idx := m.walkCreate(va)
		if !(present(pd.Entries[idx]) && pd.Entries[idx]&PTEHuge == 0) {
			pt := m.allocPT()
			pd.Entries[idx] = entryAddr(pt) | PTEPresent | PTEWritable
		}
		pt := m.tableFromAddr(tableAddr(pd.Entries[idx]))
		pt.Entries[ptIndex(va)] = uint64(va) | PTEPresent | PTEWritable | PTENX
		m.doFlush(va)
	}
}

// InitStackCanary writes the fixed sentinel at p.
func InitStackCanary(p *uint64) {
	*p = layout.StackCanaryValue
}

// CheckStackCanary reports whether p still holds the sentinel.
func CheckStackCanary(p *uint64) bool {
	return *p == layout.StackCanaryValue
}
