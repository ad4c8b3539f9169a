package irq_test

import (
	"testing"
	"time"

	"northport/arch/simhost"
	"northport/irq"
	"northport/mm/vmm"
)

// TestShootdownWaitDrainsOnAllTargetsDraining exercises the
// all-targets-drained property: a shootdown's pending count reaches
// zero, and Wait returns, only once every targeted CPU has drained its
// queue.
func TestShootdownWaitDrainsOnAllTargetsDraining(t *testing.T) {
	h, err := simhost.New(simhost.Config{RAMBytes: 1 << 20, CpuCount: 3})
	if err != nil {
		t.Fatalf("simhost.New: %v", err)
	}
	t.Cleanup(func() { h.Close() })

	coord := irq.NewCoordinator(h, 3, 200)
	var cpus vmm.CpuSet
	cpus = cpus.With(0).With(2)

	sd := coord.Shootdown(cpus, 0x4000, 0x1000)

	done := make(chan struct{})
	go func() {
		sd.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before any CPU drained")
	case <-time.After(20 * time.Millisecond):
	}

	coord.Drain(0)

	select {
	case <-done:
		t.Fatal("Wait returned after only one of two targeted CPUs drained")
	case <-time.After(20 * time.Millisecond):
	}

	coord.Drain(2)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after all targeted CPUs drained")
	}
}
