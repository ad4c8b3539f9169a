package vmm

import (
	"context"

	"northport/arch"
	"northport/defs"
)

// frameSource is the PMM surface AnonDriver needs: one zeroed page per
// fault. Kept narrow, mirroring mm/wired's domain interface, so this
// package never imports mm/pmm directly.
type frameSource interface {
	Alloc(owner uintptr) (defs.Paddr, defs.Err_t)
}

// AnonDriver backs anonymous, demand-zero memory: stacks, the heap
// break, and bss. Every page starts unmapped; the first access faults
// in a freshly zeroed frame, grounded on gopher-os's CoW page-fault
// handler (kernel/mem/vmm/vmm.go's pageFaultHandler) simplified to the
// non-CoW case for anonymous regions.
type AnonDriver struct {
	Frames frameSource
	Alloc  arch.PageTableAllocator
}

func (a *AnonDriver) Query(length uintptr, flags VmFlags, attachArg any) (Plan, defs.Err_t) {
	return Plan{Flags: flags, Length: length}, defs.ErrNone
}

func (a *AnonDriver) Attach(ctx context.Context, as *AddressSpace, r *Region, attachArg any) (any, defs.Err_t) {
	return nil, defs.ErrNone
}

func (a *AnonDriver) Detach(ctx context.Context, as *AddressSpace, r *Region) {}

func (a *AnonDriver) HandleFault(ctx context.Context, as *AddressSpace, r *Region, addr uintptr, frame arch.PageFaultFrame) EventResult {
	if frame.Write && r.Flags&VmWrite == 0 {
		return Fatal
	}
	if frame.Fetch && r.Flags&VmExec == 0 {
		return Fatal
	}
	pg, err := a.Frames.Alloc(0)
	if err != defs.ErrNone {
		return Fatal
	}
	page := addr &^ defs.PageOffsetMask
	if as.MapPage(page, pg, r.Flags.ToMmu(arch.MmuAccessed), a.Alloc) != defs.ErrNone {
		return Fatal
	}
	return Continue
}

func (a *AnonDriver) ModifyRange(ctx context.Context, as *AddressSpace, r *Region, offset, length uintptr, flags VmFlags) defs.Err_t {
	return defs.ErrNotSupported
}
