package vmm

import (
	"sort"

	"northport/defs"
)

// Region is one `[Base, Base+Length)` mapping bound to exactly one
// Driver for its lifetime.
type Region struct {
	Base   uintptr
	Length uintptr
	Flags  VmFlags
	Driver Driver
	data   any // driver-private state returned by Driver.Attach
}

func (r *Region) end() uintptr { return r.Base + r.Length }

func (r *Region) contains(addr uintptr) bool {
	return addr >= r.Base && addr < r.end()
}

func overlaps(base, length uintptr, r *Region) bool {
	end := base + length
	return base < r.end() && end > r.Base
}

// regionTree is the ordered-by-base collection an address space needs.
// A sorted slice with binary search gives O(log n) lookup and O(n)
// insert/delete, which is the same complexity trade gopher-os's flat
// page-table walk makes elsewhere in this rendering: region counts per
// address space are small enough that a slice beats the bookkeeping of
// a real balanced tree.
type regionTree struct {
	regions []*Region
}

func (t *regionTree) find(addr uintptr) (*Region, int) {
	i := sort.Search(len(t.regions), func(i int) bool {
		return t.regions[i].end() > addr
	})
	if i < len(t.regions) && t.regions[i].contains(addr) {
		return t.regions[i], i
	}
	return nil, i
}

// insert adds r, refusing any overlap with an existing region.
func (t *regionTree) insert(r *Region) defs.Err_t {
	i := sort.Search(len(t.regions), func(i int) bool {
		return t.regions[i].Base >= r.Base
	})
	if i > 0 && overlaps(r.Base, r.Length, t.regions[i-1]) {
		return defs.ErrOverlap
	}
	if i < len(t.regions) && overlaps(r.Base, r.Length, t.regions[i]) {
		return defs.ErrOverlap
	}
	t.regions = append(t.regions, nil)
	copy(t.regions[i+1:], t.regions[i:])
	t.regions[i] = r
	return defs.ErrNone
}

func (t *regionTree) remove(r *Region) {
	for i, v := range t.regions {
		if v == r {
			t.regions = append(t.regions[:i], t.regions[i+1:]...)
			return
		}
	}
}
