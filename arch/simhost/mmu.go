package simhost

import (
	"northport/arch"
	"northport/defs"
)

// pageTableFor returns (creating if needed) the simulated page table for
// root. A "page table" here is a plain Go map from page-aligned virtual
// address to its translation; this stands in for a nested PML4/PDPT/PD/PT
// walk, since modeling four levels of 512-entry tables buys this
// simulation nothing a flat map doesn't already give.
func (h *HAL) pageTableFor(root defs.Paddr) map[uintptr]pteEntry {
	h.tablesMu.Lock()
	defer h.tablesMu.Unlock()
	t, ok := h.tables[root]
	if !ok {
		t = make(map[uintptr]pteEntry)
		h.tables[root] = t
	}
	return t
}

func pageAligned(va uintptr) uintptr {
	return va &^ defs.PageOffsetMask
}

// MapPage installs va -> pa with flags. alloc is accepted to satisfy
// arch.HAL but unused: the flat-map simulation never needs to allocate
// intermediate page-table levels the way a real 4-level walk does.
func (h *HAL) MapPage(root defs.Paddr, va uintptr, pa defs.Paddr, flags arch.MmuFlags, alloc arch.PageTableAllocator) defs.Err_t {
	t := h.pageTableFor(root)
	h.tablesMu.Lock()
	t[pageAligned(va)] = pteEntry{pa: pa, flags: flags}
	h.tablesMu.Unlock()
	return defs.ErrNone
}

// UnmapPage removes the translation for va and returns the physical page
// it had mapped.
func (h *HAL) UnmapPage(root defs.Paddr, va uintptr) (defs.Paddr, bool) {
	t := h.pageTableFor(root)
	h.tablesMu.Lock()
	defer h.tablesMu.Unlock()
	e, ok := t[pageAligned(va)]
	if !ok {
		return 0, false
	}
	delete(t, pageAligned(va))
	return e.pa, true
}

// Translate walks the simulated table for va without side effects.
func (h *HAL) Translate(root defs.Paddr, va uintptr) (defs.Paddr, arch.MmuFlags, bool) {
	t := h.pageTableFor(root)
	h.tablesMu.Lock()
	defer h.tablesMu.Unlock()
	e, ok := t[pageAligned(va)]
	if !ok {
		return 0, 0, false
	}
	off := defs.Paddr(va & defs.PageOffsetMask)
	return e.pa + off, e.flags, true
}

// InvalidateRange is a no-op in the simulation: every Translate call
// re-reads the map, so there is no stale cached translation to flush.
// irq's shootdown accounting still runs the full protocol so that its
// pending-count invariant is exercised even though this backend has
// nothing physical to invalidate.
func (h *HAL) InvalidateRange(va uintptr, length uintptr) {}
