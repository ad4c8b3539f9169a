// Package clock is the monotonic-uptime and clock-event service.
// Grounded on original_source/kernel/devices/SystemClock.cpp (uptime
// accounting under a small spinlock) and kernel/include/tasking/
// Clock.h's QueueClockEvent, rendered against this module's own
// irq.DpcQueue instead of a bespoke timer-wheel callback list. The
// arithmetic itself is plain uint64 nanoseconds -- clock math is
// ambient-stack territory, not a place to bolt on an extra dependency.
package clock

import (
	"sort"

	"northport/arch"
	"northport/irq"
	"northport/lock"
)

// Snapshot is the {ticks, frequency, resolution} triple
// npk_get_monotonic_time returns.
type Snapshot struct {
	Ticks      uint64
	Frequency  uint64
	Resolution uint64
}

// event is a pending clock callback, ordered by deadline within its core's
// slice.
type event struct {
	deadline uint64
	callback func(arg any)
	arg      any
	periodic bool
	period   uint64
}

// Clock tracks monotonic uptime (in nanoseconds, frequency fixed at
// 1e9/s) and per-core pending clock events, delivered onto each core's DPC
// queue when they expire.
type Clock struct {
	hal  arch.HAL
	dpcs []*irq.DpcQueue

	mu     lock.SpinLock
	events [][]*event // one slice per core, kept sorted by deadline
}

// New builds a Clock with one pending-event slice per entry in dpcs (one
// per CPU); dpcs[core] is where core's expired callbacks are enqueued.
func New(hal arch.HAL, dpcs []*irq.DpcQueue) *Clock {
	return &Clock{hal: hal, dpcs: dpcs, events: make([][]*event, len(dpcs))}
}

// Uptime returns nanoseconds elapsed since boot.
func (c *Clock) Uptime() uint64 {
	return c.hal.Now()
}

// Snapshot reports the current {ticks, frequency, resolution} triple.
// Frequency is always 1e9 (nanosecond ticks); Resolution is 1 (every tick
// is significant), matching original_source/kernel/interfaces/driver/
// Time.cpp's monoTime.resolution = 1.
func (c *Clock) Snapshot() Snapshot {
	return Snapshot{Ticks: c.hal.Now(), Frequency: 1_000_000_000, Resolution: 1}
}

// QueueClockEvent schedules callback(arg) to run (as a DPC) no earlier
// than ns nanoseconds from now on the given core. If periodic, it
// reschedules itself with the same period after each firing. core must be
// a valid index into the dpcs slice passed to New.
func (c *Clock) QueueClockEvent(ns uint64, callback func(arg any), arg any, periodic bool, core int) {
	e := &event{deadline: c.hal.Now() + ns, callback: callback, arg: arg, periodic: periodic, period: ns}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(core, e)
}

func (c *Clock) insertLocked(core int, e *event) {
	list := c.events[core]
	i := sort.Search(len(list), func(i int) bool { return list[i].deadline >= e.deadline })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = e
	c.events[core] = list
}

// Tick is called from core's timer interrupt with the current monotonic
// time; every event whose deadline has passed is drained and enqueued on
// that core's DPC queue.
func (c *Clock) Tick(core int, now uint64) {
	c.mu.Lock()
	list := c.events[core]
	i := 0
	for i < len(list) && list[i].deadline <= now {
		i++
	}
	due := list[:i]
	c.events[core] = list[i:]
	c.mu.Unlock()

	for _, e := range due {
		e := e
		c.dpcs[core].Enqueue(irq.Dpc{Fn: e.callback, Arg: e.arg})
		if e.periodic {
			c.mu.Lock()
			e.deadline = now + e.period
			c.insertLocked(core, e)
			c.mu.Unlock()
		}
	}
}
