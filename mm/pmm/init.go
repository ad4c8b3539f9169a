package pmm

import "northport/arch"

// Init builds one MemoryDomain per bootloader-reported usable range and
// chains them as each other's fallback siblings in report order, giving
// a fixed locality order for when a NUMA topology hint isn't available
// from firmware. Call once from the boot thread.
func Init(hal arch.HAL) []*MemoryDomain {
	ranges := hal.UsableRanges()
	domains := make([]*MemoryDomain, 0, len(ranges))
	for _, r := range ranges {
		domains = append(domains, NewDomain(hal, r.Base, r.Length))
	}
	for i, d := range domains {
		sib := make([]*MemoryDomain, 0, len(domains)-1)
		for j := i + 1; j < len(domains); j++ {
			sib = append(sib, domains[j])
		}
		for j := 0; j < i; j++ {
			sib = append(sib, domains[j])
		}
		d.SetFallback(sib...)
	}
	return domains
}
