package kernel_test

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"northport/arch"
	"northport/arch/simhost"
	"northport/defs"
	"northport/kernel"
)

func newHal(t *testing.T, cpuCount int) *simhost.HAL {
	t.Helper()
	h, err := simhost.New(simhost.Config{RAMBytes: 4 << 20, CpuCount: cpuCount, CommandLine: "log=info"})
	if err != nil {
		t.Fatalf("simhost.New: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestBootWiresEverySubsystemAndLogsKernelDone(t *testing.T) {
	h := newHal(t, 1)
	k, err := kernel.Boot(h)
	if err != defs.ErrNone {
		t.Fatalf("Boot: %v", err)
	}

	if len(k.Schedulers) != 1 {
		t.Fatalf("Boot produced %d schedulers, want 1", len(k.Schedulers))
	}
	if k.Domain == nil || k.Space == nil || k.Drivers == nil || k.Clock == nil || k.VFS == nil {
		t.Fatalf("Boot left a subsystem unwired: %+v", k)
	}
	if k.Surface == nil || k.Surface.ThreadExit == nil {
		t.Fatalf("Boot left the driver ABI surface (or its ThreadExit hook) unwired")
	}

	ring := string(k.Log.RingSnapshot())
	if !strings.Contains(ring, "kernel done") {
		t.Fatalf("boot log = %q, want it to contain %q", ring, "kernel done")
	}
}

func TestUptimeAdvances(t *testing.T) {
	h := newHal(t, 1)
	k, err := kernel.Boot(h)
	if err != defs.ErrNone {
		t.Fatalf("Boot: %v", err)
	}
	time.Sleep(time.Millisecond)
	if k.Uptime() == 0 {
		t.Fatalf("Uptime() is zero after sleeping")
	}
}

func TestBringUpAllProcessorsReportsEachCpuOnce(t *testing.T) {
	h := newHal(t, 4)
	k, err := kernel.Boot(h)
	if err != defs.ErrNone {
		t.Fatalf("Boot: %v", err)
	}

	var reported atomic.Int32
	seen := make(chan arch.CpuID, 4)
	if err := k.BringUpAllProcessors(func(cpu arch.CpuID) {
		reported.Add(1)
		seen <- cpu
	}); err != nil {
		t.Fatalf("BringUpAllProcessors: %v", err)
	}
	close(seen)

	if reported.Load() != 3 {
		t.Fatalf("BringUpAllProcessors reported %d cpus, want 3 (cpu 0 is the bootstrap processor)", reported.Load())
	}
	want := map[arch.CpuID]bool{1: true, 2: true, 3: true}
	for cpu := range seen {
		if !want[cpu] {
			t.Fatalf("BringUpAllProcessors reported unexpected cpu %d", cpu)
		}
		delete(want, cpu)
	}
	if len(want) != 0 {
		t.Fatalf("BringUpAllProcessors never reported cpus %v", want)
	}
}
