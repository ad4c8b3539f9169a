// Package pmm is the page-frame allocator. It owns the
// physical RAM page database per NUMA domain and hands out zeroed pages.
// Grounded on biscuit/src/mem/mem.go's Physmem_t: an index-addressed page
// database plus an intrusive free list, generalized from biscuit's single
// implicit domain to the spec's explicit multi-domain model with a fixed
// locality fallback order.
package pmm

import (
	"unsafe"

	"northport/arch"
	"northport/defs"
	"northport/lock"
)

// PageState is the state of a physical page.
type PageState int

const (
	PageFree PageState = iota
	PageWired
	PageAnon
	PageFileBacked
	PagePageTable
	PageReserved
)

func (s PageState) String() string {
	switch s {
	case PageFree:
		return "free"
	case PageWired:
		return "wired"
	case PageAnon:
		return "anon"
	case PageFileBacked:
		return "file-backed"
	case PagePageTable:
		return "page-table"
	case PageReserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// PageInfo is per-frame metadata, one entry per RAM page in a domain's
// info_db. Owner is a weak back-reference: an opaque id the
// owning subsystem assigns meaning to, never a pointer the PMM dereferences.
type PageInfo struct {
	State   PageState
	Refcnt  int32
	Owner   uintptr
	nextIdx uint32 // free-list hook; meaningful only when State == PageFree
}

// MemoryDomain is a single NUMA domain's page database and free list.
// physOffset is the physical address of info[0].
type MemoryDomain struct {
	mu         lock.SpinLock
	physOffset defs.Paddr
	info       []PageInfo
	freeHead   uint32 // index into info, ^uint32(0) == empty
	freeCount  int
	hal        arch.HAL
	// siblings, in fallback-order preference, consulted when this
	// domain is exhausted, falling back to sibling domains in a fixed
	// locality order.
	siblings []*MemoryDomain
}

const noPage = ^uint32(0)

// NewDomain builds a MemoryDomain covering the half-open physical range
// [base, base+length), rounded to whole pages. All pages start Free.
func NewDomain(hal arch.HAL, base defs.Paddr, length uintptr) *MemoryDomain {
	npages := uintptr(length) >> defs.PageShift
	d := &MemoryDomain{
		physOffset: base.AlignDown(),
		info:       make([]PageInfo, npages),
		hal:        hal,
	}
	d.freeHead = noPage
	for i := int(npages) - 1; i >= 0; i-- {
		d.info[i].State = PageFree
		d.info[i].nextIdx = d.freeHead
		d.freeHead = uint32(i)
		d.freeCount++
	}
	return d
}

// SetFallback records the domains consulted, in order, when this domain
// cannot satisfy an allocation.
func (d *MemoryDomain) SetFallback(siblings ...*MemoryDomain) {
	d.siblings = siblings
}

func (d *MemoryDomain) indexOf(p defs.Paddr) (int, bool) {
	if p < d.physOffset {
		return 0, false
	}
	idx := (p - d.physOffset) >> defs.PageShift
	if int(idx) >= len(d.info) {
		return 0, false
	}
	return int(idx), true
}

// Lookup returns the PageInfo backing paddr p, or false if p does not
// belong to this domain (O(1) pointer arithmetic).
func (d *MemoryDomain) Lookup(p defs.Paddr) (*PageInfo, bool) {
	idx, ok := d.indexOf(p)
	if !ok {
		return nil, false
	}
	return &d.info[idx], true
}

// RevLookup returns the paddr backing a PageInfo obtained from this
// domain's info table.
func (d *MemoryDomain) RevLookup(pi *PageInfo) defs.Paddr {
	idx := (uintptr(unsafe.Pointer(pi)) - uintptr(unsafe.Pointer(&d.info[0]))) / unsafe.Sizeof(PageInfo{})
	return d.physOffset + defs.Paddr(idx)<<defs.PageShift
}

// Alloc returns a single zeroed frame, falling back to sibling domains in
// locality order on local exhaustion. It returns
// ErrOutOfMemory if every domain in the fallback chain is empty.
func (d *MemoryDomain) Alloc(owner uintptr) (defs.Paddr, defs.Err_t) {
	if p, err := d.allocLocal(owner); err == defs.ErrNone {
		return p, defs.ErrNone
	}
	for _, sib := range d.siblings {
		if p, err := sib.allocLocal(owner); err == defs.ErrNone {
			return p, defs.ErrNone
		}
	}
	return 0, defs.ErrOutOfMemory
}

func (d *MemoryDomain) allocLocal(owner uintptr) (defs.Paddr, defs.Err_t) {
	d.mu.Lock()
	idx := d.freeHead
	if idx == noPage {
		d.mu.Unlock()
		return 0, defs.ErrOutOfMemory
	}
	d.freeHead = d.info[idx].nextIdx
	d.freeCount--
	pi := &d.info[idx]
	if pi.State != PageFree {
		d.mu.Unlock()
		panic("pmm: free list entry not marked Free")
	}
	pi.State = PageWired
	pi.Refcnt = 1
	pi.Owner = owner
	d.mu.Unlock()

	paddr := d.physOffset + defs.Paddr(idx)<<defs.PageShift
	zeroPage(d.hal, paddr)
	return paddr, defs.ErrNone
}

// zeroPage eagerly zeroes a frame through the direct map. Lazy
// background zeroing is a legitimate alternative; this rendering always
// zeroes eagerly on alloc since a background zeroing worker is an
// idle-time optimization with no observable effect on correctness and
// is left undone rather than half-built.
func zeroPage(hal arch.HAL, p defs.Paddr) {
	buf := hal.DirectMap(p)[:defs.PageSize]
	for i := range buf {
		buf[i] = 0
	}
}

// Free returns a singly-referenced frame to its domain's free list.
// Freeing a page whose Refcnt is above 1, or double-freeing, is a fatal
// invariant violation; the page's non-free state (Wired, PageTable, ...)
// is not checked.
func (d *MemoryDomain) Free(p defs.Paddr) {
	if pi, ok := d.Lookup(p); ok && pi.State == PageFree {
		panic("pmm: double free")
	}
	if !d.Refdown(p) {
		panic("pmm: free of page with outstanding references")
	}
}

// Stat reports free and total page counts for invariant checking:
// |free| + |allocated| == |total| per domain.
func (d *MemoryDomain) Stat() (free, total int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freeCount, len(d.info)
}

// Refup increments a shared page's reference count, used when a second
// mapping (e.g. a COW fork) starts pointing at an already-allocated frame.
func (d *MemoryDomain) Refup(p defs.Paddr) {
	idx, ok := d.indexOf(p)
	if !ok {
		panic("pmm: refup of paddr outside this domain")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.info[idx].State == PageFree {
		panic("pmm: refup of free page")
	}
	d.info[idx].Refcnt++
}

// Refdown decrements a shared page's reference count and returns it to
// the free list once it reaches zero, reporting whether that happened.
func (d *MemoryDomain) Refdown(p defs.Paddr) bool {
	idx, ok := d.indexOf(p)
	if !ok {
		panic("pmm: refdown of paddr outside this domain")
	}
	d.mu.Lock()
	pi := &d.info[idx]
	if pi.State == PageFree {
		d.mu.Unlock()
		panic("pmm: refdown of free page")
	}
	pi.Refcnt--
	if pi.Refcnt < 0 {
		d.mu.Unlock()
		panic("pmm: negative refcount")
	}
	freed := pi.Refcnt == 0
	if freed {
		pi.State = PageFree
		pi.Owner = 0
		pi.nextIdx = d.freeHead
		d.freeHead = uint32(idx)
		d.freeCount++
	}
	d.mu.Unlock()
	return freed
}

// AllocPageTablePage implements arch.PageTableAllocator so the HAL's
// MapPage can grow page-table levels without importing this package.
func (d *MemoryDomain) AllocPageTablePage() (defs.Paddr, bool) {
	p, err := d.Alloc(0)
	if err != defs.ErrNone {
		return 0, false
	}
	if pi, ok := d.Lookup(p); ok {
		pi.State = PagePageTable
	}
	return p, true
}
