//go:build !npk_debug

package lock

// CheckAcquire and CheckRelease are no-ops outside debug builds; see
// order_debug.go for the real lock-order enforcement used by scenario S5.
const (
	RankProcessVMM = iota + 1
	RankRegion
	RankScheduler
	RankPmmDomain
	RankWiredHeap
)

func CheckAcquire(token uint64, rank int) {}
func CheckRelease(token uint64, rank int) {}
