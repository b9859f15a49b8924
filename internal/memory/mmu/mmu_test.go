package mmu

import (
	"testing"

	"github.com/gfpw/microkernelia/internal/layout"
)

func TestPML4EntryZeroNeverPresent(t *testing.T) {
	var m MMU
	m.Init()
	if m.PML4.Entries[0] != 0 {
		t.Fatalf("PML4[0] = %#x, want 0 (never present)", m.PML4.Entries[0])
	}
}

func TestZeroVirtualPageNeverMappedPresent(t *testing.T) {
	var m MMU
	m.Init()
	if m.IsPresent(0) {
		t.Fatal("VA 0 must never be present")
	}
}

func TestIdentityMapLow1GiBExcludingFirstPage(t *testing.T) {
	var m MMU
	m.Init()
	if !m.IsPresent(2 * 1024 * 1024) {
		t.Fatal("expected second 2MiB region of low 1GiB identity map to be present")
	}
	if !m.IsPresent(1000 * 1024 * 1024) {
		t.Fatal("expected an address near the end of the low 1GiB window to be present")
	}
}

func TestHighHalfKernelMapPresent(t *testing.T) {
	var m MMU
	m.Init()
	if !m.IsPresent(layout.KernelVirtBase) {
		t.Fatal("expected KernelVirtBase to be mapped present after Init")
	}
}

func TestProtectSectionsEnforcesWXor(t *testing.T) {
	var m MMU
	m.Init()

	text := Section{Start: layout.KernelVirtBase, End: layout.KernelVirtBase + hugePageSize}
	data := Section{Start: layout.KernelVirtBase + hugePageSize, End: layout.KernelVirtBase + 2*hugePageSize}
	bss := Section{Start: layout.KernelVirtBase + 2*hugePageSize, End: layout.KernelVirtBase + 3*hugePageSize}
	stack := Section{Start: layout.KernelVirtBase + 3*hugePageSize, End: layout.KernelVirtBase + 4*hugePageSize}

	m.ProtectSections(text, data, bss, stack)

	if !m.TextIsExecutable(text) {
		t.Fatal("expected text section to remain executable (NX clear)")
	}
	if !m.SectionIsNX(data) {
		t.Fatal("expected data section to have NX set")
	}
	if !m.SectionIsNX(bss) {
		t.Fatal("expected bss section to have NX set")
	}
	if !m.SectionIsNX(stack) {
		t.Fatal("expected stack section to have NX set")
	}
}

func TestInsertGuardPageClearsPresentBit(t *testing.T) {
	var m MMU
	m.Init()
	m.MapStack4K(layout.KernelVirtBase+8*hugePageSize, 4*pageSize)

	guard := uintptr(layout.KernelVirtBase + 8*hugePageSize + 3*pageSize)
	if !m.IsPresent(guard) {
		t.Fatal("expected guard candidate page to be present before InsertGuardPage")
	}

	m.InsertGuardPage(guard)
	if m.IsPresent(guard) {
		t.Fatal("expected guard page to be not-present after InsertGuardPage")
	}

	// Neighboring pages are untouched.
	if !m.IsPresent(guard - pageSize) {
		t.Fatal("expected page before the guard page to remain present")
	}
}

func TestMapPhysToVirtIsIdentity(t *testing.T) {
	var m MMU
	got := m.MapPhysToVirt(64*1024*1024, 8*1024*1024)
	if got != 64*1024*1024 {
		t.Fatalf("expected identity VA==PA, got %#x", got)
	}
	if !m.IsPresent(64*1024*1024) || !m.IsPresent(70*1024*1024) {
		t.Fatal("expected entire mapped range to be present")
	}
}

func TestUnmapPhysRegionClearsEntries(t *testing.T) {
	var m MMU
	base := m.MapPhysToVirt(128*1024*1024, 4*1024*1024)
	if !m.IsPresent(base) {
		t.Fatal("expected mapping to be present before unmap")
	}
	m.UnmapPhysRegion(base, 4*1024*1024)
	if m.IsPresent(base) {
		t.Fatal("expected mapping to be absent after unmap")
	}
}

func TestMapMMIORegionIsNXAndOutsideIdentityWindow(t *testing.T) {
	var m MMU
	m.Init()
	virt := m.MapMMIORegion(0xFEE00000, 4096)
	if virt < layout.MMIOWindowBase {
		t.Fatalf("expected MMIO VA %#x to fall within the MMIO window starting at %#x", virt, uintptr(layout.MMIOWindowBase))
	}
	if !m.IsPresent(virt) {
		t.Fatal("expected MMIO region to be present")
	}
	mmio := Section{Start: virt, End: virt + hugePageSize}
	if !m.SectionIsNX(mmio) {
		t.Fatal("expected MMIO mapping to have NX set")
	}
}

func TestStackCanaryInitAndCheck(t *testing.T) {
	var canary uint64
	InitStackCanary(&canary)
	if !CheckStackCanary(&canary) {
		t.Fatal("expected canary to check out immediately after init")
	}
	canary = 0xDEADBEEF
	if CheckStackCanary(&canary) {
		t.Fatal("expected canary check to fail after modification")
	}
}
