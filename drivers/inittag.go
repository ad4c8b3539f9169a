package drivers

// TagType discriminates the members of an InitTag chain.
type TagType int

const (
	TagPci TagType = iota
	TagMmio
)

// InitTag is one link in the chain the driver manager builds from a
// hardware probe before binding a manifest's entry point. Grounded on
// original_source/kernel/include/drivers/InitTags.h's InitTag/PciInitTag/
// MmioInitTag hierarchy, rendered as a tagged union with an explicit Type
// field instead of C++ RTTI.
type InitTag struct {
	Type TagType
	Next *InitTag

	// Pci is valid when Type == TagPci.
	Pci PciAddress
	// Mmio is valid when Type == TagMmio.
	Mmio uintptr
}

// PciAddress identifies a PCI function and the vendor/device pair a
// manifest's MachineName is matched against.
type PciAddress struct {
	Segment  uint16
	Bus      uint8
	Device   uint8 // 0..31
	Function uint8 // 0..7
	VendorID uint16
	DeviceID uint16
}

// FindTag walks the chain starting at tags for the first link of type t.
func FindTag(tags *InitTag, t TagType) (*InitTag, bool) {
	for cur := tags; cur != nil; cur = cur.Next {
		if cur.Type == t {
			return cur, true
		}
	}
	return nil, false
}

// machineNameFromTags derives the opaque byte pattern a DriverManifest's
// MachineName is matched against, from the first tag in the chain that
// carries one. PCI functions match on vendor:device; MMIO-only devices
// (platform devices with no PCI config space) match on their base
// address, which is unusual but lets a manifest target a fixed-address
// peripheral the way original_source's Qemu/Power.cpp binds to a fixed
// ACPI object instead of a PCI BDF.
func machineNameFromTags(tags *InitTag) (ManifestName, bool) {
	if tag, ok := FindTag(tags, TagPci); ok {
		return ManifestName{byte(tag.Pci.VendorID >> 8), byte(tag.Pci.VendorID), byte(tag.Pci.DeviceID >> 8), byte(tag.Pci.DeviceID)}, true
	}
	if tag, ok := FindTag(tags, TagMmio); ok {
		base := tag.Mmio
		return ManifestName{byte(base >> 24), byte(base >> 16), byte(base >> 8), byte(base)}, true
	}
	return nil, false
}
