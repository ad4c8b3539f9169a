package vmm

import (
	"sync/atomic"

	"northport/arch"
)

// CpuSet is a bitmap of CPUs that may hold a cached translation for a
// given AddressSpace, tracked so a shootdown need only
// interrupt the CPUs that could actually be affected.
type CpuSet uint64

func (s CpuSet) Has(cpu arch.CpuID) bool { return s&(1<<uint(cpu)) != 0 }
func (s CpuSet) With(cpu arch.CpuID) CpuSet { return s | (1 << uint(cpu)) }
func (s CpuSet) Without(cpu arch.CpuID) CpuSet { return s &^ (1 << uint(cpu)) }
func (s CpuSet) Count() int {
	n := 0
	for i := 0; i < 64; i++ {
		if s&(1<<uint(i)) != 0 {
			n++
		}
	}
	return n
}

type pendingCounter struct {
	n atomic.Int64
	c chan struct{}
}

func newPendingCounter(n int) *pendingCounter {
	pc := &pendingCounter{c: make(chan struct{})}
	pc.n.Store(int64(n))
	if n == 0 {
		close(pc.c)
	}
	return pc
}

func (pc *pendingCounter) decrement() {
	if pc.n.Add(-1) == 0 {
		close(pc.c)
	}
}

func (pc *pendingCounter) wait() { <-pc.c }
