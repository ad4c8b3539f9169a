package arch

import "runtime"

// Pause yields the current CPU for one spin-wait iteration. On real
// hardware this is the PAUSE/YIELD instruction; in the host simulation
// runtime.Gosched is close enough to avoid starving other simulated CPUs
// that are themselves plain goroutines.
func Pause() {
	runtime.Gosched()
}
