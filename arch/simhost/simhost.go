// Package simhost is the one concrete arch.HAL implementation this module
// ships: a host-process simulation backing every primitive with real
// host facilities instead of bare-metal ones, so the rest of the kernel
// can be built and tested without real hardware. Grounded on the
// "separate the interface from the one real implementation" shape
// gopher-os takes between kernel/hal and kernel/hal/multiboot.
//
// The direct map and simulated physical RAM are backed by a
// golang.org/x/sys/unix anonymous mmap. DirectMap panics on a physical
// address outside that arena instead of silently succeeding; the arena
// itself has no guard pages.
package simhost

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"northport/arch"
	"northport/defs"
)

// cpuCtxKey is the context key BootAllProcessors stamps with each
// simulated CPU's identity.
type cpuCtxKey struct{}

// WithCPU returns a context carrying cpu as the simulated-CPU identity,
// exported so callers bootstrapping the first (bootstrap-processor)
// context outside of BootAllProcessors can do so consistently.
func WithCPU(ctx context.Context, cpu arch.CpuID) context.Context {
	return context.WithValue(ctx, cpuCtxKey{}, cpu)
}

type pteEntry struct {
	pa    defs.Paddr
	flags arch.MmuFlags
}

// HAL is the host-process simulation of arch.HAL.
type HAL struct {
	ram          []byte
	ramBase      defs.Paddr
	cpuCount     int
	irqEnabled   atomic.Bool
	bootState    arch.LoadState
	usableRanges []arch.MemoryRange

	tablesMu sync.Mutex
	tables   map[defs.Paddr]map[uintptr]pteEntry

	ipiMu   sync.Mutex
	ipiSubs map[arch.CpuID]func(vector uint8)

	started time.Time
}

// Config describes the simulated machine to build.
type Config struct {
	RAMBytes    int
	CpuCount    int
	CommandLine string
}

// New builds a simulated machine with an anonymous-mmap-backed RAM arena.
// An out-of-range physical address is caught by DirectMap's bounds check
// (a Go panic), not by a host fault.
func New(cfg Config) (*HAL, error) {
	if cfg.RAMBytes <= 0 {
		cfg.RAMBytes = 64 << 20
	}
	if cfg.CpuCount <= 0 {
		cfg.CpuCount = 1
	}
	ram, err := unix.Mmap(-1, 0, cfg.RAMBytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("simhost: mmap ram: %w", err)
	}
	h := &HAL{
		ram:      ram,
		ramBase:  defs.Paddr(0x1000_0000),
		cpuCount: cfg.CpuCount,
		tables:   make(map[defs.Paddr]map[uintptr]pteEntry),
		ipiSubs:  make(map[arch.CpuID]func(vector uint8)),
		started:  time.Now(),
	}
	h.irqEnabled.Store(false)
	h.usableRanges = []arch.MemoryRange{{Base: h.ramBase, Length: uintptr(len(ram))}}
	h.bootState = arch.LoadState{
		DirectMapBase: uintptr(0),
		KernelBase:    h.ramBase,
		BspID:         0,
		CommandLine:   cfg.CommandLine,
	}
	return h, nil
}

// Close releases the simulated RAM arena.
func (h *HAL) Close() error {
	if h.ram == nil {
		return nil
	}
	err := unix.Munmap(h.ram)
	h.ram = nil
	return err
}

func (h *HAL) BootState() arch.LoadState          { return h.bootState }
func (h *HAL) UsableRanges() []arch.MemoryRange    { return h.usableRanges }
func (h *HAL) CpuCount() int                       { return h.cpuCount }
func (h *HAL) CurrentCpu(ctx context.Context) arch.CpuID {
	if v, ok := ctx.Value(cpuCtxKey{}).(arch.CpuID); ok {
		return v
	}
	return 0
}

// BootAllProcessors spins up one goroutine per simulated non-bootstrap
// CPU using golang.org/x/sync/errgroup, standing in for biscuit's
// runtime.MAXCPUS-sized per-CPU arrays with a bounded, cancellable group
// instead of a fixed array.
func (h *HAL) BootAllProcessors(entry func(context.Context, arch.CpuID)) error {
	g, ctx := errgroup.WithContext(context.Background())
	for i := 1; i < h.cpuCount; i++ {
		cpu := arch.CpuID(i)
		g.Go(func() error {
			entry(WithCPU(ctx, cpu), cpu)
			return nil
		})
	}
	return g.Wait()
}

func (h *HAL) InterruptsEnabled() bool { return h.irqEnabled.Load() }
func (h *HAL) DisableInterrupts()      { h.irqEnabled.Store(false) }
func (h *HAL) EnableInterrupts()       { h.irqEnabled.Store(true) }

// WaitForInterrupt yields to the Go scheduler; a real WFI/HLT would halt
// the core until the next interrupt, which a goroutine cannot do without
// blocking the whole simulation.
func (h *HAL) WaitForInterrupt() {
	time.Sleep(time.Microsecond)
}

// SendIPI invokes the destination CPU's registered IPI handler
// synchronously from the caller's goroutine. Handlers are registered with
// Subscribe; an IPI to a CPU with no registered handler is dropped.
func (h *HAL) SendIPI(dest arch.CpuID, vector uint8) {
	h.ipiMu.Lock()
	fn := h.ipiSubs[dest]
	h.ipiMu.Unlock()
	if fn != nil {
		fn(vector)
	}
}

// Subscribe registers the callback invoked when vector is raised on cpu.
// Exported for irq.Layer to wire its dispatch loop into SendIPI.
func (h *HAL) Subscribe(cpu arch.CpuID, fn func(vector uint8)) {
	h.ipiMu.Lock()
	defer h.ipiMu.Unlock()
	h.ipiSubs[cpu] = fn
}

func (h *HAL) ArmTimer(d uint64) {
	// The simulation has no interrupt-driven local timer; sched.Scheduler.Tick
	// and clock.Clock.Tick are instead called explicitly by whatever drives
	// simulated time. ArmTimer is a documented no-op here.
}

func (h *HAL) Now() uint64 {
	return uint64(time.Since(h.started).Nanoseconds())
}

func (h *HAL) DirectMap(p defs.Paddr) []byte {
	off := int(p - h.ramBase)
	if off < 0 || off >= len(h.ram) {
		panic("simhost: direct map access outside simulated RAM")
	}
	return h.ram[off:]
}
