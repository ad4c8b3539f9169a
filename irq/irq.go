// Package irq is the interrupt layer: a vector table
// shared across CPUs, a per-CPU Deferred Procedure Call queue drained
// at passive run level, and a per-CPU IPI mailbox for cross-CPU calls.
//
// Grounded on biscuit's msi package (src/msi/msi.go) for the
// claim/alloc-a-free-slot vector allocation pattern, and on gopher-os's
// kernel/irq package for the "dispatch runs the handler with interrupts
// disabled, on the interrupt stack, must not block" contract: Dispatch
// runs a Handler synchronously and nothing in this package blocks;
// work that needs more than that goes on the DPC queue instead.
package irq

import (
	"northport/defs"
	"northport/lock"
)

// Vector identifies one of the architecture's interrupt vectors.
type Vector uint8

// Handler runs at interrupt context: interrupts disabled, on the
// interrupt stack, must not block.
type Handler func(v Vector, arg any)

type vectorSlot struct {
	handler Handler
	arg     any
	live    bool
}

// Table is the vector table. dynamicFloor marks the lowest vector Alloc
// may hand out; vectors below it are reserved for architecture fixed
// use and only reachable through Claim.
type Table struct {
	mu           lock.SpinLock
	slots        [256]vectorSlot
	dynamicFloor Vector
}

// NewTable builds a vector table. Vectors below dynamicFloor can only
// be installed via Claim, reserved for architecture fixed vectors.
func NewTable(dynamicFloor Vector) *Table {
	return &Table{dynamicFloor: dynamicFloor}
}

// Claim reserves a specific vector for architecture fixed use (e.g.
// the timer or IPI vectors). It does not install a handler; callers
// follow with Attach.
func (t *Table) Claim(v Vector) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots[v].live {
		return defs.ErrBusy
	}
	t.slots[v].live = true
	return defs.ErrNone
}

// Alloc returns the lowest free vector at or above the dynamic floor.
func (t *Table) Alloc() (Vector, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for v := int(t.dynamicFloor); v < len(t.slots); v++ {
		if !t.slots[v].live {
			t.slots[v].live = true
			return Vector(v), defs.ErrNone
		}
	}
	return 0, defs.ErrOutOfVectors
}

// Attach installs h as the handler for v. Attaching over a vector that
// already has a live handler is an error; v must
// already have been Claimed or Alloc'd.
func (t *Table) Attach(v Vector, h Handler, arg any) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.slots[v].live {
		return defs.ErrInvalidArgument
	}
	if t.slots[v].handler != nil {
		return defs.ErrBusy
	}
	t.slots[v].handler = h
	t.slots[v].arg = arg
	return defs.ErrNone
}

// Detach removes v's handler and frees the vector for reuse.
func (t *Table) Detach(v Vector) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[v] = vectorSlot{}
}

// Dispatch is entered by the trap stubs on vector v. It runs the
// installed handler synchronously and must not block. The table lock is
// released before the handler runs, so a Handler never contends with
// Dispatch itself for it.
func (t *Table) Dispatch(v Vector) {
	t.mu.Lock()
	slot := t.slots[v]
	t.mu.Unlock()
	if slot.handler == nil {
		panic("irq: dispatch on vector with no handler")
	}
	slot.handler(v, slot.arg)
}
