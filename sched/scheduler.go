package sched

import (
	"context"
	"sync/atomic"

	"northport/arch"
	"northport/irq"
	"northport/lock"
)

// DefaultQuantumNanos is the time-sharing quantum length; real-time
// threads (priority >= 128) never have it enforced -- strict priority,
// no decay.
const DefaultQuantumNanos uint64 = 10_000_000 // 10ms

// Scheduler is one CPU's instance. Threads are never migrated
// implicitly between Schedulers; a thread
// stays on whichever one EnqueueThread placed it on.
type Scheduler struct {
	mu      lock.SpinLock
	buckets [256]queue // index 1..255 only; 0 is reserved for idle and never populated

	idle    *Thread
	current *Thread

	tickDeadline uint64
	hal          arch.HAL
	cpu          arch.CpuID
	dpcs         *irq.DpcQueue

	nextIndex atomic.Uint32
	epoch     uint32
}

// New builds a Scheduler for one CPU. dpcs may be nil in tests that
// don't exercise OnPassiveRunLevel's DPC draining.
func New(hal arch.HAL, cpu arch.CpuID, dpcs *irq.DpcQueue) *Scheduler {
	return &Scheduler{hal: hal, cpu: cpu, dpcs: dpcs, epoch: 1}
}

// NewThread allocates a Thread bound to this scheduler's id space, in
// Setup state, ready for EnqueueThread.
func (s *Scheduler) NewThread(priority uint8) *Thread {
	idx := s.nextIndex.Add(1) - 1
	return &Thread{
		ID:       ThreadID{Index: idx, Epoch: s.epoch},
		Priority: priority,
		State:    Setup,
		frame:    newExecFrame(),
	}
}

// Spawn allocates a thread and starts the goroutine that will run
// entry once the scheduler first picks it. The thread is left in
// Setup state; call EnqueueThread to make it runnable.
func (s *Scheduler) Spawn(priority uint8, entry func(ctx context.Context, self *Thread)) *Thread {
	t := s.NewThread(priority)
	go func() {
		t.frame.wait()
		entry(context.Background(), t)
		s.Exit(t)
	}()
	return t
}

// SetIdleThread nominates t as this CPU's idle thread. t must have been
// created by Spawn; it is immediately made eligible
// to run, since pickLocked falls back to it whenever every bucket is
// empty.
func (s *Scheduler) SetIdleThread(t *Thread) {
	s.mu.Lock()
	t.transition(Runnable)
	s.idle = t
	s.mu.Unlock()
}

// EnqueueThread marks t Runnable and adds it to the bucket for its
// effective priority. boost is the transient addend
// applied now, e.g. on wake-up for I/O responsiveness.
func (s *Scheduler) EnqueueThread(t *Thread, boost uint8) {
	s.mu.Lock()
	t.transition(Runnable)
	t.Boost = boost
	if t != s.idle {
		s.buckets[t.EffectivePriority()].pushBack(t)
	}
	s.mu.Unlock()
}

// DequeueThread removes t from its run queue. If t is the currently
// running thread, a reschedule is forced; t is left in
// Running state and is not requeued anywhere -- dequeuing the running
// thread takes it off this scheduler entirely, and it is the caller's
// job to give it a new state and, if it still belongs somewhere,
// re-enqueue it (here or on another CPU's scheduler). Forcing a
// reschedule only makes sense when the caller's own goroutine is t's
// goroutine -- the common case is a thread dequeuing itself right
// before being migrated. Dequeuing the thread actually running on
// another CPU needs that CPU's own cooperation (an IPI asking it to
// reschedule), which is outside this type's scope.
func (s *Scheduler) DequeueThread(t *Thread) {
	s.mu.Lock()
	s.buckets[t.EffectivePriority()].remove(t)
	forceResched := t == s.current
	s.mu.Unlock()
	if forceResched {
		s.reschedule(nil)
	}
}

// Yield surrenders the remainder of the current thread's quantum; it
// is requeued at the tail of its current priority bucket.
func (s *Scheduler) Yield() {
	s.mu.Lock()
	cur := s.current
	if cur == nil {
		s.mu.Unlock()
		return
	}
	cur.transition(Runnable)
	s.mu.Unlock()

	s.reschedule(func() {
		if cur != s.idle {
			s.buckets[cur.EffectivePriority()].pushBack(cur)
		}
	})
}

// Exit marks t Dead and switches away from it permanently; called by
// the goroutine a Spawned thread's entry runs in, once entry returns.
func (s *Scheduler) Exit(t *Thread) {
	s.mu.Lock()
	t.transition(Dead)
	s.mu.Unlock()
	s.reschedule(func() {
		if t.onDead != nil {
			t.onDead(t)
		}
	})
}

// OnPassiveRunLevel drains this CPU's DPC queue, then picks the next
// thread to run.
func (s *Scheduler) OnPassiveRunLevel() {
	if s.dpcs != nil {
		s.dpcs.Drain()
	}
	s.reschedule(nil)
}

// Tick runs boost decay and quantum accounting for a clock interrupt
// at time now, then yields if the current thread's quantum expired.
// Real-time threads (priority >= 128) never have their
// boost decayed or quantum enforced.
func (s *Scheduler) Tick(now uint64) {
	s.mu.Lock()
	cur := s.current
	expired := false
	if cur != nil && cur != s.idle && cur.Priority < 128 {
		if cur.Boost > 0 {
			cur.Boost--
		}
		expired = now >= s.tickDeadline
	}
	s.mu.Unlock()
	if expired {
		s.Yield()
	}
}

// pickLocked returns the next thread to run: the head of the highest
// non-empty priority bucket, ties broken FIFO, or the idle thread if
// every bucket is empty. Must be called with s.mu held.
func (s *Scheduler) pickLocked() *Thread {
	for p := 255; p >= 1; p-- {
		if t := s.buckets[p].popFront(); t != nil {
			return t
		}
	}
	if s.idle == nil {
		panic("sched: no runnable thread and no idle thread set")
	}
	return s.idle
}

// Resched performs an unconditional reschedule with no special handling
// of the outgoing thread, used to bootstrap the very first pick on a
// CPU (when there is no meaningful "current" thread's disposition to
// decide).
func (s *Scheduler) Resched() {
	s.reschedule(nil)
}

// reschedule performs the actual context switch to whatever pickLocked
// chooses. after, if non-nil, runs in the SwitchExecFrame callback --
// "on neither thread's stack" -- and decides what happens to the
// outgoing thread: requeue it (Yield), reap it (Exit), or nothing
// (DequeueThread, OnPassiveRunLevel). It is the only place
// SwitchExecFrame is invoked.
func (s *Scheduler) reschedule(after func()) {
	s.mu.Lock()
	next := s.pickLocked()
	prev := s.current
	s.current = next
	if next.State != Running {
		next.transition(Running)
	}
	s.tickDeadline = s.hal.Now() + DefaultQuantumNanos
	s.mu.Unlock()

	if prev == next {
		if after != nil {
			after()
		}
		return
	}

	if prev == nil {
		if after != nil {
			after()
		}
		next.frame.resume()
		return
	}

	SwitchExecFrame(&prev.frame, &next.frame, func(any) {
		if after != nil {
			after()
		}
	}, nil)
}

// Current returns the thread currently running on this CPU, if any.
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
