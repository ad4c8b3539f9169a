package drivers_test

import (
	"testing"

	"northport/drivers"
)

func TestFindTagLocatesTheRequestedLink(t *testing.T) {
	mmio := &drivers.InitTag{Type: drivers.TagMmio, Mmio: 0xfee00000}
	pci := &drivers.InitTag{Type: drivers.TagPci, Next: mmio, Pci: drivers.PciAddress{VendorID: 0x8086, DeviceID: 0x100e}}

	if got, ok := drivers.FindTag(pci, drivers.TagMmio); !ok || got != mmio {
		t.Fatalf("FindTag(TagMmio) = %v, %v; want mmio tag", got, ok)
	}
	if got, ok := drivers.FindTag(pci, drivers.TagPci); !ok || got != pci {
		t.Fatalf("FindTag(TagPci) = %v, %v; want pci tag", got, ok)
	}
}

func TestFindTagMissingReturnsFalse(t *testing.T) {
	pci := &drivers.InitTag{Type: drivers.TagPci}
	if _, ok := drivers.FindTag(pci, drivers.TagMmio); ok {
		t.Fatalf("FindTag(TagMmio) on a chain with no mmio tag reported found")
	}
}
