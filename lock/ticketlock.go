package lock

import (
	"sync/atomic"

	"northport/arch"
)

// TicketLock is a fair FIFO lock used by the driver registry /
// device-API table (drivers.Manager), where starvation under contention
// would be worse than the small overhead of a ticket counter. The page
// allocator and wired heap use SpinLock instead.
type TicketLock struct {
	nextTicket uint64
	nowServing uint64
}

// Lock waits until it is this caller's turn.
func (t *TicketLock) Lock() {
	my := atomic.AddUint64(&t.nextTicket, 1) - 1
	for atomic.LoadUint64(&t.nowServing) != my {
		arch.Pause()
	}
}

// Unlock advances to the next waiter.
func (t *TicketLock) Unlock() {
	atomic.AddUint64(&t.nowServing, 1)
}
