package irq

import (
	"northport/arch"
	"northport/lock"
)

// MailFn is a cross-CPU callback, an {fn, arg} pair.
type MailFn func(arg any)

type mail struct {
	fn  MailFn
	arg any
}

// Mailbox is one CPU's MPSC inbox. Multiple senders call Send; only the
// owning CPU calls ProcessLocal. Rendered here as a SpinLock-guarded
// slice rather than a true lock-free ring: the host simulation has no
// interrupt-context reentrancy to avoid deadlocking against, which is
// the only reason biscuit-style kernels pay for a lock-free queue here.
type Mailbox struct {
	mu    lock.SpinLock
	items []mail
}

// Send enqueues fn(arg) to run on the owning CPU. The caller is
// responsible for raising the IPI that makes the target CPU notice;
// Mailboxes is the multi-CPU registry that does both together.
func (m *Mailbox) Send(fn MailFn, arg any) {
	m.mu.Lock()
	m.items = append(m.items, mail{fn: fn, arg: arg})
	m.mu.Unlock()
}

// ProcessLocal drains and executes this CPU's mailbox in arrival order.
func (m *Mailbox) ProcessLocal() {
	for {
		m.mu.Lock()
		if len(m.items) == 0 {
			m.mu.Unlock()
			return
		}
		msg := m.items[0]
		m.items = m.items[1:]
		m.mu.Unlock()
		msg.fn(msg.arg)
	}
}

// Mailboxes is the multi-CPU IPI registry: one Mailbox per CPU plus the
// HAL needed to actually raise the interrupt.
type Mailboxes struct {
	hal   arch.HAL
	boxes []Mailbox
	// ipiVector is the vector SendSMPMail and PanicAllCores raise; it
	// must be Claimed and Attached to a handler that calls ProcessLocal
	// before any CPU comes up.
	ipiVector Vector
}

// NewMailboxes builds one Mailbox per CPU.
func NewMailboxes(hal arch.HAL, cpuCount int, ipiVector Vector) *Mailboxes {
	return &Mailboxes{hal: hal, boxes: make([]Mailbox, cpuCount), ipiVector: ipiVector}
}

// SendSMPMail enqueues fn(arg) on dest's mailbox and raises the IPI
// that will make dest drain it.
func (m *Mailboxes) SendSMPMail(dest arch.CpuID, fn MailFn, arg any) {
	m.boxes[dest].Send(fn, arg)
	m.hal.SendIPI(dest, uint8(m.ipiVector))
}

// ProcessLocalMail drains the calling CPU's mailbox. Installed as (or
// called from) the handler attached to ipiVector.
func (m *Mailboxes) ProcessLocalMail(self arch.CpuID) {
	m.boxes[self].ProcessLocal()
}

// PanicAllCores sends the distinguished panic IPI to every CPU but
// self, asking each to stop cleanly for a panic dump.
func (m *Mailboxes) PanicAllCores(self arch.CpuID, onPanic MailFn) {
	for cpu := range m.boxes {
		if arch.CpuID(cpu) == self {
			continue
		}
		m.SendSMPMail(arch.CpuID(cpu), onPanic, nil)
	}
}
