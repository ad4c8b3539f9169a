package kernel

import (
	"context"

	"northport/services/klog"
	"northport/services/symbol"
)

// haltFn is mocked by tests, the same way gopher-os's kernel.cpuHaltFn is
// (kernel/panic.go): Panic's halt step never returns on real hardware, so
// a test needs a seam to observe everything up to the halt without
// hanging forever.
var haltFn = func(k *Kernel) {
	for {
		k.HAL.WaitForInterrupt()
	}
}

// Panic implements the unrecoverable-error path: stop this CPU,
// broadcast the panic IPI to every other CPU, drain the log sinks, print
// a back-trace via the symbol store, and halt. Grounded on gopher-os's
// kernel.Panic (kernel/panic.go), which plays the identical role -- format
// the cause, flush the console, halt -- for that kernel; this adds
// the cross-CPU broadcast and symbolized back-trace.
//
// ctx identifies the panicking CPU (the same shape arch.HAL.CurrentCpu
// already threads through context); Panic never returns.
func (k *Kernel) Panic(ctx context.Context, why string, frames ...symbol.Frame) {
	k.HAL.DisableInterrupts()
	self := k.HAL.CurrentCpu(ctx)

	if k.Mail != nil {
		k.Mail.PanicAllCores(self, func(arg any) {
			k.HAL.DisableInterrupts()
		})
	}

	k.Log.Printf(klog.LevelError, "kernel panic: %s", why)
	if len(frames) > 0 {
		bt := symbol.Backtrace(k.Symbols, frames)
		for _, fn := range bt.Function {
			k.Log.Printf(klog.LevelError, "  %s", fn.Name)
		}
	}
	k.Log.Printf(klog.LevelError, "*** system halted ***")

	haltFn(k)
}
