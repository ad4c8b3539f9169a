package irq

import (
	"northport/arch"
	"northport/lock"
	"northport/mm/vmm"
)

// ShootdownQueue is the per-CPU queue of pending invalidations drained
// at the next safe point after the IRQ return path. A
// Coordinator owns one per CPU and raises the shootdown IPI to wake the
// target CPUs into draining theirs.
type ShootdownQueue struct {
	mu    lock.SpinLock
	items []shootdownEntry
}

type shootdownEntry struct {
	base, length uintptr
	decrement    func()
}

// Coordinator implements the narrow shootdowner interface mm/vmm
// depends on, keeping mm/vmm itself free of any import on irq: vmm sits
// below irq in the import/lock-order discipline.
type Coordinator struct {
	hal    arch.HAL
	queues []ShootdownQueue
	vector Vector
}

// NewCoordinator builds a shootdown coordinator with one queue per CPU.
func NewCoordinator(hal arch.HAL, cpuCount int, vector Vector) *Coordinator {
	return &Coordinator{hal: hal, queues: make([]ShootdownQueue, cpuCount), vector: vector}
}

// Shootdown enqueues {base, length} on every targeted CPU's queue,
// raises the shootdown IPI, and returns a handle the caller waits on
// until every target has invalidated locally.
func (c *Coordinator) Shootdown(cpus vmm.CpuSet, base uintptr, length uintptr) *vmm.Shootdown {
	sd, decrement := vmm.NewShootdown(base, length, cpus.Count())
	for cpu := 0; cpu < len(c.queues); cpu++ {
		if !cpus.Has(arch.CpuID(cpu)) {
			continue
		}
		c.queues[cpu].mu.Lock()
		c.queues[cpu].items = append(c.queues[cpu].items, shootdownEntry{base: base, length: length, decrement: decrement})
		c.queues[cpu].mu.Unlock()
		c.hal.SendIPI(arch.CpuID(cpu), uint8(c.vector))
	}
	return sd
}

// Drain is called by the owning CPU at the next safe point after an
// IRQ return: it invalidates each queued range locally and decrements
// every counter it touched, releasing any Coordinator.Shootdown caller
// whose count reaches zero.
func (c *Coordinator) Drain(self arch.CpuID) {
	c.queues[self].mu.Lock()
	items := c.queues[self].items
	c.queues[self].items = nil
	c.queues[self].mu.Unlock()

	for _, e := range items {
		c.hal.InvalidateRange(e.base, e.length)
		e.decrement()
	}
}
