// Package kernel is boot orchestration: it consumes the LoadState and
// MemoryRange slice the Arch/HAL hands over and wires every other package
// into one running Kernel, assembled in dependency order. Grounded on
// gopher-os's top-level kernel package,
// which plays the same "the one place that knows about every subsystem"
// role for that kernel (see kernel/panic.go, adapted here for Panic).
package kernel

import (
	"context"
	"fmt"

	"northport/arch"
	"northport/defs"
	"northport/drivers"
	"northport/drivers/abi"
	"northport/irq"
	"northport/mm/pmm"
	"northport/mm/vmm"
	"northport/sched"
	"northport/services/acpi"
	"northport/services/clock"
	"northport/services/config"
	"northport/services/klog"
	"northport/services/symbol"
	"northport/vfs"
)

// DriverABIVersion is the semver string drivers.Register checks incoming
// manifests' MinABI against.
const DriverABIVersion = "v1.0.0"

const (
	ipiVectorFloor irq.Vector   = 32
	rootFsDriverId vfs.DriverId = 0
)

// Kernel holds every subsystem instance this module builds, once per
// boot: a single well-known object with an explicit init(...) called
// once from the boot thread.
type Kernel struct {
	HAL   arch.HAL
	Log   *klog.Logger
	Config *config.Store

	Domain *pmm.MemoryDomain
	Space  *vmm.AddressSpace

	Vectors   *irq.Table
	Mail      *irq.Mailboxes
	Shootdown *irq.Coordinator

	Schedulers []*sched.Scheduler
	dpcs       []*irq.DpcQueue

	Drivers *drivers.Manager
	Surface *abi.Surface
	Clock   *clock.Clock
	ACPI    *acpi.Tables
	Symbols *symbol.Repo
	VFS     *vfs.Cache
}

// Boot brings every subsystem up against hal, in dependency order (HAL
// state first, then PMM, then everything that allocates through it). It
// never touches bare-metal specifics directly;
// hal is the only thing that knows whether it's real hardware or
// arch/simhost.
func Boot(hal arch.HAL) (*Kernel, defs.Err_t) {
	state := hal.BootState()
	cfg := config.Parse(state.CommandLine)

	log := klog.New(64*1024, klog.LevelInfo)
	log.Printf(klog.LevelInfo, "northport boot: cpu=%d cmdline=%q", hal.CpuCount(), state.CommandLine)

	ranges := hal.UsableRanges()
	if len(ranges) == 0 {
		return nil, defs.ErrOutOfMemory
	}
	domains := make([]*pmm.MemoryDomain, len(ranges))
	for i, r := range ranges {
		domains[i] = pmm.NewDomain(hal, r.Base, r.Length)
	}
	domain := domains[0]
	if len(domains) > 1 {
		siblings := make([]*pmm.MemoryDomain, 0, len(domains)-1)
		for _, d := range domains[1:] {
			siblings = append(siblings, d)
		}
		domain.SetFallback(siblings...)
	}

	vectors := irq.NewTable(ipiVectorFloor)
	ipiVector, err := vectors.Alloc()
	if err != defs.ErrNone {
		return nil, err
	}
	shootdownVector, err := vectors.Alloc()
	if err != defs.ErrNone {
		return nil, err
	}
	mail := irq.NewMailboxes(hal, hal.CpuCount(), ipiVector)
	coord := irq.NewCoordinator(hal, hal.CpuCount(), shootdownVector)

	root, ok := domain.AllocPageTablePage()
	if !ok {
		return nil, defs.ErrOutOfMemory
	}
	space := vmm.New(hal, root, coord)

	dpcs := make([]*irq.DpcQueue, hal.CpuCount())
	schedulers := make([]*sched.Scheduler, hal.CpuCount())
	for i := 0; i < hal.CpuCount(); i++ {
		dpcs[i] = &irq.DpcQueue{}
		s := sched.New(hal, arch.CpuID(i), dpcs[i])
		schedulers[i] = s
	}
	// The bootstrap processor's idle thread is wired here so a single-CPU
	// boot (S1) reaches idle without ever calling BringUpAllProcessors;
	// every other CPU gets its idle thread from BringUpAllProcessors once
	// it reports in (S2).
	bsp := schedulers[0]
	bspIdle := bsp.Spawn(0, func(ctx context.Context, self *sched.Thread) {
		for {
			hal.WaitForInterrupt()
			bsp.Yield()
		}
	})
	bsp.SetIdleThread(bspIdle)

	mgr := drivers.NewManager(DriverABIVersion)
	clk := clock.New(hal, dpcs)
	vfsCache := vfs.NewCache(rootFsDriverId)

	surface := abi.NewSurface(mgr, cfg, clk, func(level abi.LogLevel, line string) {
		log.Printf(driverLogLevel(level), "%s", line)
	})
	// A driver thread calling npk_thread_exit dies on whichever CPU it's
	// currently running on; look that scheduler up by CurrentCpu rather
	// than assuming the bootstrap processor's.
	surface.ThreadExit = func(ctx context.Context, code int) {
		cpu := hal.CurrentCpu(ctx)
		if int(cpu) >= len(schedulers) {
			return
		}
		s := schedulers[cpu]
		if t := s.Current(); t != nil {
			s.Exit(t)
		}
	}

	k := &Kernel{
		HAL:        hal,
		Log:        log,
		Config:     cfg,
		Domain:     domain,
		Space:      space,
		Vectors:    vectors,
		Mail:       mail,
		Shootdown:  coord,
		Schedulers: schedulers,
		dpcs:       dpcs,
		Drivers:    mgr,
		Surface:    surface,
		Clock:      clk,
		VFS:        vfsCache,
	}

	if state.RSDP != nil {
		tables, aerr := acpi.SetRsdp(hal, *state.RSDP)
		if aerr != defs.ErrNone {
			log.Printf(klog.LevelWarn, "acpi: SetRsdp failed: %v", aerr)
		} else {
			k.ACPI = tables
		}
	}

	log.Printf(klog.LevelInfo, "kernel done")
	return k, defs.ErrNone
}

// BringUpAllProcessors starts every non-bootstrap CPU via the HAL,
// running idle on each scheduler once its CPU reports its index in.
// report, if non-nil, is called once per CPU after it's online.
func (k *Kernel) BringUpAllProcessors(report func(arch.CpuID)) error {
	return k.HAL.BootAllProcessors(func(ctx context.Context, cpu arch.CpuID) {
		k.Log.Printf(klog.LevelInfo, "cpu %d online", cpu)
		if int(cpu) < len(k.Schedulers) {
			s := k.Schedulers[cpu]
			idle := s.Spawn(0, func(ctx context.Context, self *sched.Thread) {
				for {
					k.HAL.WaitForInterrupt()
					s.Yield()
				}
			})
			s.SetIdleThread(idle)
		}
		if report != nil {
			report(cpu)
		}
	})
}

// Uptime reports nanoseconds of monotonic time elapsed since boot,
// advancing at >= 100 Hz granularity.
func (k *Kernel) Uptime() uint64 {
	return k.Clock.Uptime()
}

// String renders a short summary, useful in panic logs and tests.
func (k *Kernel) String() string {
	return fmt.Sprintf("northport kernel: %d cpu(s), driver abi %s", k.HAL.CpuCount(), DriverABIVersion)
}

// driverLogLevel maps a driver ABI log level onto this package's own
// klog.Level, the two enums having been defined independently (abi must
// not import services/klog: a driver image links against abi alone).
func driverLogLevel(level abi.LogLevel) klog.Level {
	switch level {
	case abi.LogTrace:
		return klog.LevelTrace
	case abi.LogDebug:
		return klog.LevelDebug
	case abi.LogWarn:
		return klog.LevelWarn
	case abi.LogError:
		return klog.LevelError
	default:
		return klog.LevelInfo
	}
}
