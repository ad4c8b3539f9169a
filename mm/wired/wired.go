// Package wired is the wired heap: a slab/quickfit allocator backed by
// the PMM, pinned in the direct map, safe to call with interrupts
// disabled and the scheduler lock held. Grounded on biscuit's convention
// of a size-classed allocator fronting a page source
// (mem.Physmem_t.Refpg_new) plus biscuit's per-CPU free-list fast path
// in mem.Physmem_t.percpu -- rendered here as per-CPU magazines fronting
// a central slab allocator.
package wired

import (
	"northport/arch"
	"northport/defs"
	"northport/lock"
)

// sizeClasses are the power-of-two slab classes from 16B up to one page.
var sizeClasses = [...]int{16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

const magazineCapacity = 32

// domain abstracts the PMM surface the wired heap needs. Kept minimal so
// this package never imports mm/pmm directly.
type domain interface {
	Alloc(owner uintptr) (defs.Paddr, defs.Err_t)
	Free(p defs.Paddr)
}

// Ptr is a handle to a wired allocation: the direct-mapped bytes plus the
// base physical address, which wired_free uses to find the owning slab's
// header instead of requiring the caller to repeat the size. Ptr is
// comparable to nil only through IsNil; the zero Ptr is not
// a valid handle.
type Ptr struct {
	Bytes []byte
	base  defs.Paddr
}

// IsNil reports whether p is the null handle.
func (p Ptr) IsNil() bool { return p.Bytes == nil }

type slabClass struct {
	mu        lock.SpinLock
	size      int
	freeList  []defs.Paddr // central free list of object base addresses, LIFO
	magazines []magazine
}

type magazine struct {
	mu    lock.SpinLock
	items []defs.Paddr
}

// Heap is the wired heap instance. One Heap exists per kernel, shared
// process-wide.
type Heap struct {
	hal     arch.HAL
	domain  domain
	classes [len(sizeClasses)]slabClass

	headersMu lock.SpinLock
	// headers maps an object's base paddr to the size class its
	// containing slab page was carved for, or to a negative page count
	// for a large (>1 slab-class) allocation.
	headers map[defs.Paddr]int
	// live tracks which object addresses are currently checked out, so
	// Free can detect a double free instead of silently corrupting a
	// free list.
	live map[defs.Paddr]bool
}

// New builds a wired heap backed by dom, fronted by numCPUs magazines per
// size class.
func New(hal arch.HAL, dom domain, numCPUs int) *Heap {
	h := &Heap{hal: hal, domain: dom, headers: make(map[defs.Paddr]int), live: make(map[defs.Paddr]bool)}
	for i, sz := range sizeClasses {
		h.classes[i].size = sz
		h.classes[i].magazines = make([]magazine, numCPUs)
	}
	return h
}

func classFor(size int) (int, bool) {
	for i, sz := range sizeClasses {
		if size <= sz {
			return i, true
		}
	}
	return 0, false
}

// Alloc returns size bytes of wired memory, or the null Ptr if the
// allocation cannot be satisfied. The largest slab class is one page, so
// every request above it needs more than one page; the PMM hands out
// pages one at a time with no contiguity guarantee across calls, so such
// requests always return the null Ptr rather than non-contiguous memory.
func (h *Heap) Alloc(size int, cpu int) Ptr {
	if size <= 0 {
		return Ptr{}
	}
	if ci, ok := classFor(size); ok {
		return h.allocFromClass(ci, cpu, size)
	}
	return h.allocLarge(size)
}

func (h *Heap) allocFromClass(ci int, cpu int, size int) Ptr {
	cls := &h.classes[ci]
	if cpu >= 0 && cpu < len(cls.magazines) {
		if base, ok := cls.magazines[cpu].pop(); ok {
			return h.ptrAt(base, size, ci)
		}
	}
	cls.mu.Lock()
	if n := len(cls.freeList); n > 0 {
		base := cls.freeList[n-1]
		cls.freeList = cls.freeList[:n-1]
		cls.mu.Unlock()
		return h.ptrAt(base, size, ci)
	}
	cls.mu.Unlock()

	// Refill: carve a fresh page into objects of this class.
	page, err := h.domain.Alloc(0)
	if err != defs.ErrNone {
		return Ptr{}
	}
	objs := defs.PageSize / cls.size
	cls.mu.Lock()
	for i := 1; i < objs; i++ {
		cls.freeList = append(cls.freeList, page+defs.Paddr(i*cls.size))
	}
	cls.mu.Unlock()
	return h.ptrAt(page, size, ci)
}

func (h *Heap) ptrAt(base defs.Paddr, size int, class int) Ptr {
	h.headersMu.Lock()
	h.headers[base] = class
	h.live[base] = true
	h.headersMu.Unlock()
	bytes := h.hal.DirectMap(base)
	return Ptr{Bytes: bytes[:size], base: base}
}

func (h *Heap) allocLarge(size int) Ptr {
	pages := (size + defs.PageSize - 1) / defs.PageSize
	if pages != 1 {
		// See Alloc: PMM.Alloc gives no contiguity guarantee across
		// calls, so a multi-page run cannot be satisfied here.
		return Ptr{}
	}
	page, err := h.domain.Alloc(0)
	if err != defs.ErrNone {
		return Ptr{}
	}
	h.headersMu.Lock()
	h.headers[page] = -1
	h.live[page] = true
	h.headersMu.Unlock()
	return Ptr{Bytes: h.hal.DirectMap(page)[:size], base: page}
}

// Free returns p, previously returned by Alloc, to the heap. The slab
// header recorded at allocation time supplies the size class, so Free
// never needs the caller to repeat the size. A pointer that isn't
// currently checked out -- never allocated, or already freed once --
// panics rather than silently corrupting a free list.
func (h *Heap) Free(p Ptr, cpu int) {
	if p.IsNil() {
		return
	}
	h.headersMu.Lock()
	ci, ok := h.headers[p.base]
	if ok && !h.live[p.base] {
		ok = false
	}
	if ok {
		delete(h.live, p.base)
	}
	h.headersMu.Unlock()
	if !ok {
		panic("wired: double free")
	}
	if ci < 0 {
		h.domain.Free(p.base)
		h.headersMu.Lock()
		delete(h.headers, p.base)
		h.headersMu.Unlock()
		return
	}
	cls := &h.classes[ci]
	if cpu >= 0 && cpu < len(cls.magazines) && cls.magazines[cpu].push(p.base) {
		return
	}
	cls.mu.Lock()
	cls.freeList = append(cls.freeList, p.base)
	cls.mu.Unlock()
}

func (m *magazine) pop() (defs.Paddr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return 0, false
	}
	n := len(m.items) - 1
	p := m.items[n]
	m.items = m.items[:n]
	return p, true
}

func (m *magazine) push(p defs.Paddr) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) >= magazineCapacity {
		return false
	}
	m.items = append(m.items, p)
	return true
}
