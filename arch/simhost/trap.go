package simhost

import (
	"golang.org/x/arch/x86/x86asm"

	"northport/arch"
)

// AdvancePastFault decodes the instruction at the trap frame's faulting
// IP and returns the address immediately following it. On real hardware
// the CPU's own %rip already points past a completed instruction for
// most traps; the cases that don't (e.g. retrying a faulted access
// in-place) need to know the instruction's length to decide whether to
// retry or skip. x86/x86asm gives a host-side decoder standing in for
// that hardware behavior, grounded on
// original_source/kernel/hardware/x86_64/TrapFrame.cpp's GetTrapReturnAddr.
//
// code is the raw bytes at frame.IP; callers typically slice these from
// the faulting process image via the symbol store.
func AdvancePastFault(frame arch.TrapFrame, code []byte) (uintptr, error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return frame.IP, err
	}
	return frame.IP + uintptr(inst.Len), nil
}
