package vmm_test

import (
	"context"
	"testing"

	"northport/arch"
	"northport/arch/simhost"
	"northport/defs"
	"northport/mm/pmm"
	"northport/mm/vmm"
)

func newAS(t *testing.T) (*vmm.AddressSpace, *simhost.HAL, *pmm.MemoryDomain, defs.Paddr) {
	t.Helper()
	h, err := simhost.New(simhost.Config{RAMBytes: 4 << 20, CpuCount: 1})
	if err != nil {
		t.Fatalf("simhost.New: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	r := h.UsableRanges()[0]
	dom := pmm.NewDomain(h, r.Base, r.Length)
	root, ok := dom.AllocPageTablePage()
	if !ok {
		t.Fatal("alloc root page table")
	}
	return vmm.New(h, root, nil), h, dom, root
}

func TestMapOverlapRejected(t *testing.T) {
	as, _, dom, _ := newAS(t)
	driver := &vmm.AnonDriver{Frames: dom}
	ctx := context.Background()

	if _, err := as.Map(ctx, 0x1000, 0x2000, vmm.VmRead|vmm.VmWrite, driver, nil); err != defs.ErrNone {
		t.Fatalf("first map: %v", err)
	}
	if _, err := as.Map(ctx, 0x2000, 0x1000, vmm.VmRead, driver, nil); err != defs.ErrOverlap {
		t.Fatalf("expected overlap, got %v", err)
	}
}

func TestFaultInstallsMappingAndRetrySucceeds(t *testing.T) {
	as, h, dom, root := newAS(t)
	driver := &vmm.AnonDriver{Frames: dom}
	ctx := context.Background()

	if _, err := as.Map(ctx, 0x10000, defs.PageSize, vmm.VmRead|vmm.VmWrite, driver, nil); err != defs.ErrNone {
		t.Fatalf("map: %v", err)
	}

	frame := arch.PageFaultFrame{Addr: 0x10000, Write: false, Fetch: false, User: false}
	res := vmm.DispatchPageFault(ctx, as, frame)
	if res != vmm.Continue {
		t.Fatalf("expected Continue, got %v", res)
	}

	if _, _, ok := h.Translate(root, 0x10000); !ok {
		t.Fatal("expected translation to be installed after fault")
	}
}

func TestFaultOutsideAnyRegionIsFatalForUser(t *testing.T) {
	as, _, _, _ := newAS(t)
	ctx := context.Background()
	frame := arch.PageFaultFrame{Addr: 0xdeadb000, User: true}
	res := vmm.DispatchPageFault(ctx, as, frame)
	if res != vmm.Fatal {
		t.Fatalf("expected Fatal, got %v", res)
	}
}
