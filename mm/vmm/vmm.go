// Package vmm is virtual memory management: per-process
// address spaces, a region tree keyed by base address, page-fault
// dispatch to a pluggable driver per region, and TLB shootdown
// coordination across CPUs.
//
// Grounded on biscuit's vm.Vm_t (mm/vmm is the generalization of
// biscuit/src/vm/as.go's "one mutex guards the region list, the pmap,
// and the lazily-allocated page tables" design) and on gopher-os's
// kernel/mem/vmm page-fault handler (kernel/mem/vmm/vmm.go), which is
// the model for the CoW-style "retry after installing a mapping"
// fault protocol rendered here as EventResult.
package vmm

import (
	"context"

	"northport/arch"
	"northport/defs"
)

// VmFlags describes a region's high-level protection and type, and is
// translated to arch.MmuFlags by ToMmu. Kept distinct from MmuFlags so
// that a region's intent (e.g. "this is a stack guard page") survives
// independent of what the current CPU's MMU can encode.
type VmFlags uint

const (
	VmRead VmFlags = 1 << iota
	VmWrite
	VmExec
	VmUser
	VmShared
)

// ToMmu maps VmFlags to the arch flag bits a mapping for this region
// should carry, augmented by extra bits the caller requests (e.g.
// arch.MmuGlobal on kernel mappings).
func (f VmFlags) ToMmu(extra arch.MmuFlags) arch.MmuFlags {
	var m arch.MmuFlags
	if f&VmWrite != 0 {
		m |= arch.MmuWrite
	}
	if f&VmExec != 0 {
		m |= arch.MmuExecute
	}
	if f&VmUser != 0 {
		m |= arch.MmuUser
	}
	return m | extra
}

// EventResult is the outcome a Driver's HandleFault reports back to the
// fault dispatcher.
type EventResult int

const (
	// Continue means a mapping was installed; retry the faulting
	// instruction.
	Continue EventResult = iota
	// Blocked means the faulting thread was parked on I/O; the
	// dispatcher must suspend the thread and retry on resume.
	Blocked
	// Fatal means the access can never succeed: terminate the
	// faulting user process, or panic if the fault was from kernel
	// mode.
	Fatal
)

// Plan is what Driver.Query returns: the concrete flags and backing
// parameters a region should be created with, after the driver has
// resolved whatever attach_arg it was given.
type Plan struct {
	Flags  VmFlags
	Length uintptr
}

// Driver is the per-region backing implementation: Anon, Kernel, or
// File/VFS backing. Exactly one Driver instance backs one
// Region for its lifetime.
type Driver interface {
	// Query resolves attachArg into a concrete Plan before the region
	// is inserted into the tree.
	Query(length uintptr, flags VmFlags, attachArg any) (Plan, defs.Err_t)
	// Attach is called once the region has been inserted; the address
	// space lock is not held during the call.
	Attach(ctx context.Context, as *AddressSpace, r *Region, attachArg any) (any, defs.Err_t)
	// Detach tears the region down; it is called before the region is
	// removed from the tree, without the address space lock held.
	Detach(ctx context.Context, as *AddressSpace, r *Region)
	// HandleFault services a page fault landing inside the region;
	// called with the address space lock held for reading.
	HandleFault(ctx context.Context, as *AddressSpace, r *Region, addr uintptr, frame arch.PageFaultFrame) EventResult
	// ModifyRange optionally adjusts an already-mapped sub-range's
	// flags (e.g. mprotect). Drivers that don't support this return
	// defs.ErrNotSupported.
	ModifyRange(ctx context.Context, as *AddressSpace, r *Region, offset, length uintptr, flags VmFlags) defs.Err_t
}

// shootdowner is the subset of irq's shootdown coordinator
// (irq.Coordinator) the vmm package needs, kept as a narrow interface so
// mm/vmm never imports irq: irq imports vmm for CpuSet and Shootdown, so
// the reverse import would be a cycle.
type shootdowner interface {
	Shootdown(cpus CpuSet, base uintptr, length uintptr) *Shootdown
}

// Shootdown tracks one in-flight TLB invalidation. Wait blocks until
// every targeted CPU has drained
// and decremented the pending count.
type Shootdown struct {
	Base    uintptr
	Length  uintptr
	pending *pendingCounter
}

// Wait blocks until all targeted CPUs have invalidated locally. The
// initiator must not free the underlying frames before this returns.
func (s *Shootdown) Wait() {
	if s.pending != nil {
		s.pending.wait()
	}
}

// NewShootdown is called by a shootdowner implementation (irq.Coordinator)
// to build the handle a caller of AddressSpace.Unmap waits on. n is the
// number of CPUs targeted; the returned decrement func must be called
// exactly once per targeted CPU as each drains its queue.
func NewShootdown(base, length uintptr, n int) (*Shootdown, func()) {
	pc := newPendingCounter(n)
	return &Shootdown{Base: base, Length: length, pending: pc}, pc.decrement
}
