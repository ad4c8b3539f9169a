package wired_test

import (
	"testing"

	"northport/arch/simhost"
	"northport/defs"
	"northport/mm/pmm"
	"northport/mm/wired"
)

func newHeap(t *testing.T) (*wired.Heap, *simhost.HAL) {
	t.Helper()
	h, err := simhost.New(simhost.Config{RAMBytes: 4 << 20, CpuCount: 2})
	if err != nil {
		t.Fatalf("simhost.New: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	r := h.UsableRanges()[0]
	d := pmm.NewDomain(h, r.Base, r.Length)
	return wired.New(h, d, 2), h
}

func TestAllocFreeRoundTrip(t *testing.T) {
	heap, _ := newHeap(t)
	p := heap.Alloc(48, 0)
	if p.IsNil() {
		t.Fatal("alloc failed")
	}
	if len(p.Bytes) != 48 {
		t.Fatalf("got %d bytes, want 48", len(p.Bytes))
	}
	p.Bytes[0] = 0x7
	heap.Free(p, 0)
}

// TestNoFragmentationAfterEverHeld exercises the no-fragmentation-induced
// failure guarantee: once the heap has ever held the requested size
// class free, a later request for it must not fail.
func TestNoFragmentationAfterEverHeld(t *testing.T) {
	heap, _ := newHeap(t)
	var held []wired.Ptr
	for i := 0; i < 200; i++ {
		p := heap.Alloc(64, 0)
		if p.IsNil() {
			t.Fatalf("alloc %d failed", i)
		}
		held = append(held, p)
	}
	for _, p := range held {
		heap.Free(p, 0)
	}
	// every one of those 64-byte slots is now on a free list; re-allocating
	// the same count must succeed without touching the PMM again.
	for i := 0; i < 200; i++ {
		p := heap.Alloc(64, 1)
		if p.IsNil() {
			t.Fatalf("re-alloc %d failed after heap held this size class free", i)
		}
	}
}

func TestDoubleFreeOfPointerPanics(t *testing.T) {
	heap, _ := newHeap(t)
	p := heap.Alloc(32, 0)
	heap.Free(p, 0)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic double-freeing a pointer")
		}
	}()
	heap.Free(p, 0)
}
