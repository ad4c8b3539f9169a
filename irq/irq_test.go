package irq_test

import (
	"testing"

	"northport/defs"
	"northport/irq"
)

func TestAllocReturnsLowestFreeAtOrAboveFloor(t *testing.T) {
	tbl := irq.NewTable(32)
	if err := tbl.Claim(32); err != defs.ErrNone {
		t.Fatalf("claim 32: %v", err)
	}
	v, err := tbl.Alloc()
	if err != defs.ErrNone {
		t.Fatalf("alloc: %v", err)
	}
	if v != 33 {
		t.Fatalf("got vector %d, want 33", v)
	}
}

func TestAttachOverLiveVectorFails(t *testing.T) {
	tbl := irq.NewTable(32)
	v, _ := tbl.Alloc()
	if err := tbl.Attach(v, func(irq.Vector, any) {}, nil); err != defs.ErrNone {
		t.Fatalf("first attach: %v", err)
	}
	if err := tbl.Attach(v, func(irq.Vector, any) {}, nil); err != defs.ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestDispatchRunsHandlerWithArg(t *testing.T) {
	tbl := irq.NewTable(32)
	v, _ := tbl.Alloc()
	var got any
	tbl.Attach(v, func(_ irq.Vector, arg any) { got = arg }, "hello")
	tbl.Dispatch(v)
	if got != "hello" {
		t.Fatalf("got %v, want hello", got)
	}
}

func TestDpcQueueDrainsInArrivalOrder(t *testing.T) {
	var q irq.DpcQueue
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		q.Enqueue(irq.Dpc{Fn: func(any) { order = append(order, i) }})
	}
	q.Drain()
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d", i, v, i)
		}
	}
	if q.Pending() {
		t.Fatal("expected queue empty after Drain")
	}
}

func TestMailboxProcessesInArrivalOrder(t *testing.T) {
	var mb irq.Mailbox
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		mb.Send(func(any) { order = append(order, i) }, nil)
	}
	mb.ProcessLocal()
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d", i, v, i)
		}
	}
}
