// Package lock implements the three run-level-aware lock primitives every
// other kernel package embeds: SpinLock, TicketLock, and RwLock. Grounded
// on the teacher's convention of embedding sync.Mutex directly into
// structs like mem.Physmem_t and vm.Vm_t -- here the embedded type is one
// of ours instead of sync.Mutex, since a plain mutex cannot be taken with
// interrupts disabled and released from a context that never reschedules.
package lock

import (
	"sync/atomic"

	"northport/arch"
)

// SpinLock is a test-and-set spinlock safe to acquire with interrupts
// disabled. LockIRQ additionally disables interrupts on the local CPU for
// the duration of the critical section and restores the prior state on
// Unlock, the IRQ-safe variant the allocator hot paths require
// (pmm.domain.lock, wiredheap.lock).
type SpinLock struct {
	held atomic.Bool
}

// Lock spins until the lock is acquired. It does not touch the interrupt
// flag; use LockIRQ when the caller may itself be interrupted by a handler
// that would try to retake this lock.
func (l *SpinLock) Lock() {
	for !l.held.CompareAndSwap(false, true) {
		arch.Pause()
	}
}

// TryLock attempts to acquire the lock without spinning and reports
// whether it succeeded.
func (l *SpinLock) TryLock() bool {
	return l.held.CompareAndSwap(false, true)
}

// Unlock releases the lock. Unlocking an unheld SpinLock is a programmer
// error and panics, mirroring the teacher's "XXXPANIC" defensive style.
func (l *SpinLock) Unlock() {
	if !l.held.CompareAndSwap(true, false) {
		panic("lock: unlock of unheld spinlock")
	}
}

// LockIRQ disables interrupts on the calling CPU, then acquires the lock.
// It returns the previous interrupt-enabled state, which must be passed
// to UnlockIRQ.
func (l *SpinLock) LockIRQ(h arch.HAL) bool {
	was := h.InterruptsEnabled()
	h.DisableInterrupts()
	l.Lock()
	return was
}

// UnlockIRQ releases the lock and restores the interrupt-enabled state
// captured by the matching LockIRQ call.
func (l *SpinLock) UnlockIRQ(h arch.HAL, wasEnabled bool) {
	l.Unlock()
	if wasEnabled {
		h.EnableInterrupts()
	}
}
