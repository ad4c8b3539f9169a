// Package arch defines the Arch/HAL boundary: CPU-local storage, interrupt
// enable/disable, wait-for-interrupt, MMU table walk/insert/remove
// primitives, trap-frame inspection, IPI send, per-CPU timer arming, and
// the monotonic timestamp. It is expressed as an interface, the way
// gopher-os separates kernel/hal from kernel/hal/multiboot, so that a
// single production implementation and a host-simulation implementation
// (package arch/simhost) can sit behind it without the rest of the kernel
// knowing the difference.
package arch

import (
	"context"

	"northport/defs"
)

// MmuFlags are the page-table protection bits the HAL understands. Bit
// positions are architecture-defined; VM never hard-codes them, it only
// ever ORs/tests named constants.
type MmuFlags uint

const (
	MmuWrite MmuFlags = 1 << iota
	MmuUser
	MmuGlobal
	MmuExecute
	MmuDirty
	MmuAccessed
)

// CpuID identifies a logical CPU. CPU 0 is always the bootstrap processor.
type CpuID uint32

// TrapFrame is the architecture-specific register snapshot captured on
// entry to a trap or interrupt handler. Only the fields the portable
// kernel needs are exposed; the rest stays behind the HAL.
type TrapFrame struct {
	Vector    uint8
	ErrorCode uint64
	IP        uintptr
	SP        uintptr
	BP        uintptr
	FromUser  bool
}

// PageFaultFrame describes a page fault, built by the arch layer from the
// raw trap and handed to vmm.DispatchPageFault.
type PageFaultFrame struct {
	Addr  uintptr
	Write bool
	Fetch bool
	User  bool
}

// LoadState is the bootloader-neutral snapshot handed from Arch/HAL to the
// rest of boot, grounded on original_source/kernel/include/Loader.hpp.
type LoadState struct {
	DirectMapBase uintptr
	KernelBase    defs.Paddr
	BspID         CpuID
	RSDP          *defs.Paddr
	FDT           *defs.Paddr
	CommandLine   string
}

// MemoryRange is a single usable-RAM descriptor reported by the
// bootloader's memory map, fed to pmm.Init.
type MemoryRange struct {
	Base   defs.Paddr
	Length uintptr
}

// HAL is the full Arch/HAL contract. Every method must be safe to call
// from Interrupt run level unless documented otherwise.
type HAL interface {
	// BootState returns the parsed hand-off state. Valid only after Init.
	BootState() LoadState
	// UsableRanges returns the bootloader's usable physical memory
	// ranges, the input the PMM's domains are built from.
	UsableRanges() []MemoryRange

	// CpuCount reports the number of logical CPUs discovered at boot.
	CpuCount() int
	// CurrentCpu returns the logical id of the CPU the calling goroutine
	// is standing in for. On real hardware this reads a per-CPU base
	// register; the host simulation instead threads the id through ctx
	// (stamped by BootAllProcessors), since Go has no portable,
	// supported way to ask "which OS thread am I on" the way a kernel
	// asks "which CPU am I on".
	CurrentCpu(ctx context.Context) CpuID
	// BootAllProcessors brings up every non-bootstrap CPU, each one
	// entering at entry with a context carrying its CpuID. It returns
	// once every CPU's entry call has returned; there is no timeout for
	// stragglers.
	BootAllProcessors(entry func(context.Context, CpuID)) error

	// InterruptsEnabled reports whether the calling CPU accepts maskable
	// interrupts right now.
	InterruptsEnabled() bool
	DisableInterrupts()
	EnableInterrupts()
	// WaitForInterrupt parks the calling CPU until the next interrupt,
	// used by the idle thread.
	WaitForInterrupt()

	// SendIPI raises the interrupt vector on the destination CPU.
	SendIPI(dest CpuID, vector uint8)

	// ArmTimer schedules a one-shot local-timer interrupt after d.
	ArmTimer(d uint64Nanos)
	// Now returns the monotonic timestamp in nanoseconds since boot.
	Now() uint64Nanos

	// MapPage installs a translation for va -> pa with the given flags
	// in the page table rooted at root, walking
	// (and allocating, via alloc) intermediate levels as needed.
	MapPage(root defs.Paddr, va uintptr, pa defs.Paddr, flags MmuFlags, alloc PageTableAllocator) defs.Err_t
	// UnmapPage removes the translation for va, returning the physical
	// page it had mapped and whether a mapping existed.
	UnmapPage(root defs.Paddr, va uintptr) (defs.Paddr, bool)
	// Translate walks the page tables for va without side effects.
	Translate(root defs.Paddr, va uintptr) (defs.Paddr, MmuFlags, bool)
	// InvalidateRange flushes the local TLB for [va, va+length).
	InvalidateRange(va uintptr, length uintptr)

	// DirectMap returns a byte-addressable view of physical memory
	// starting at pa via the HHDM; the slice may run past the end of
	// pa's page, so callers slice off the length they need. It never
	// faults.
	DirectMap(pa defs.Paddr) []byte
}

// PageTableAllocator hands the HAL a freshly zeroed physical page to use
// as an intermediate page-table level. It is implemented by mm/pmm so the
// HAL never imports the PMM package directly (avoids an import cycle; the
// HAL only needs "give me a page", not the whole allocator contract).
type PageTableAllocator interface {
	AllocPageTablePage() (defs.Paddr, bool)
}

// uint64Nanos documents intent at the HAL boundary without pulling in the
// time package's monotonic-clock caveats; services/clock keeps it as
// uint64 nanoseconds for the rest of the kernel.
type uint64Nanos = uint64
