package vmm

import (
	"context"

	"northport/arch"
	"northport/defs"
	"northport/lock"
)

// AddressSpace is one process's (or the kernel's) view of memory: the
// region tree plus the root of its simulated page table, guarded by a
// single lock exactly as biscuit's Vm_t guards Vmregion, Pmap, and
// P_pmap together (biscuit/src/vm/as.go).
type AddressSpace struct {
	mu   lock.RwLock
	tree regionTree

	hal  arch.HAL
	root defs.Paddr

	// cpus tracks which CPUs may hold cached translations for this
	// address space, as recorded by NoteResident; shootdowns sends the
	// IPI-driven invalidation to the tracked set.
	cpus       CpuSet
	shootdowns shootdowner
}

// New creates an address space rooted at an already-allocated top-level
// page table page.
func New(hal arch.HAL, root defs.Paddr, sd shootdowner) *AddressSpace {
	return &AddressSpace{hal: hal, root: root, shootdowns: sd}
}

// NoteResident records that cpu may now cache translations for this
// address space. The scheduler does not call it; the set grows only
// through explicit calls, and Unmap skips the shootdown while it is
// empty.
func (as *AddressSpace) NoteResident(cpu arch.CpuID) {
	as.mu.Lock()
	as.cpus = as.cpus.With(cpu)
	as.mu.Unlock()
}

// Map creates a new region backed by driver and attaches it.
func (as *AddressSpace) Map(ctx context.Context, base uintptr, length uintptr, flags VmFlags, driver Driver, attachArg any) (*Region, defs.Err_t) {
	plan, err := driver.Query(length, flags, attachArg)
	if err != defs.ErrNone {
		return nil, err
	}
	r := &Region{Base: base, Length: length, Flags: plan.Flags, Driver: driver}

	as.mu.Lock()
	if err := as.tree.insert(r); err != defs.ErrNone {
		as.mu.Unlock()
		return nil, err
	}
	as.mu.Unlock()

	data, err := driver.Attach(ctx, as, r, attachArg)
	if err != defs.ErrNone {
		as.mu.Lock()
		as.tree.remove(r)
		as.mu.Unlock()
		return nil, err
	}
	r.data = data
	return r, defs.ErrNone
}

// Unmap detaches and removes a region, then shoots down any stale
// translations for its range before returning: the initiator must not
// free the underlying frames before pending invalidations have drained.
func (as *AddressSpace) Unmap(ctx context.Context, r *Region) {
	r.Driver.Detach(ctx, as, r)

	as.mu.Lock()
	as.tree.remove(r)
	cpus := as.cpus
	as.mu.Unlock()

	if as.shootdowns != nil && cpus.Count() > 0 {
		as.shootdowns.Shootdown(cpus, r.Base, r.Length).Wait()
	}
}

// Lookup returns the region containing addr, if any.
func (as *AddressSpace) Lookup(addr uintptr) (*Region, bool) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	r, _ := as.tree.find(addr)
	return r, r != nil
}

// DispatchPageFault is the single entry point the arch trap path calls
// on every page fault. A fault with no covering region
// is fatal for a user thread and a panic for a kernel one; a covering
// region's driver decides the rest.
func DispatchPageFault(ctx context.Context, as *AddressSpace, frame arch.PageFaultFrame) EventResult {
	r, ok := as.Lookup(frame.Addr)
	if !ok {
		if frame.User {
			return Fatal
		}
		panic("vmm: unhandled page fault in kernel mode")
	}

	as.mu.RLock()
	defer as.mu.RUnlock()
	return r.Driver.HandleFault(ctx, as, r, frame.Addr, frame)
}

// MapPage installs a single MMU translation in this address space's
// page table. Drivers call this from HandleFault with the flags bits
// they've decided the mapping should carry (region flags, plus any
// extra bit like arch.MmuDirty after a CoW copy).
func (as *AddressSpace) MapPage(va uintptr, pa defs.Paddr, flags arch.MmuFlags, alloc arch.PageTableAllocator) defs.Err_t {
	return as.hal.MapPage(as.root, va, pa, flags, alloc)
}
