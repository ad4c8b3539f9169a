// Package acpi is a read-only consumer of the firmware's ACPI table
// blob. Grounded on original_source/kernel/include/acpi/
// AcpiTables.h's AcpiTables::Init/Find and config/AcpiTables.h's
// VerifyChecksum, rendered against arch.HAL.DirectMap instead of a raw
// pointer cast since this module has no physical address space of its
// own to dereference into.
package acpi

import (
	"northport/arch"
	"northport/defs"
)

// sdtHeaderLen is the size of the ACPI System Description Table header
// common to every table (signature, length, revision, checksum, OEM
// fields, creator fields): 36 bytes per the ACPI specification.
const sdtHeaderLen = 36

// Header is the parsed common prefix of any ACPI table.
type Header struct {
	Signature [4]byte
	Length    uint32
	Revision  uint8
	Checksum  uint8
}

// Tables holds the parsed RSDP/XSDT (or RSDT) chain and answers
// find-table queries against the firmware's table blob.
type Tables struct {
	hal       arch.HAL
	rsdp      defs.Paddr
	entries   []defs.Paddr
	entrySize int // 4 for RSDT, 8 for XSDT
}

// SetRsdp records the physical address of the Root System Description
// Pointer and parses the root table (XSDT if present in the RSDP,
// otherwise RSDT) into a list of table entry addresses, parsed once at
// boot.
func SetRsdp(hal arch.HAL, rsdp defs.Paddr) (*Tables, defs.Err_t) {
	t := &Tables{hal: hal, rsdp: rsdp}

	rsdpBytes := hal.DirectMap(rsdp)
	if len(rsdpBytes) < 36 {
		return nil, defs.ErrInvalidArgument
	}
	revision := rsdpBytes[15]

	var rootAddr defs.Paddr
	if revision >= 2 {
		rootAddr = defs.Paddr(leUint64(rsdpBytes[24:32]))
		t.entrySize = 8
	} else {
		rootAddr = defs.Paddr(leUint32(rsdpBytes[16:20]))
		t.entrySize = 4
	}

	rootBytes := hal.DirectMap(rootAddr)
	if len(rootBytes) < sdtHeaderLen {
		return nil, defs.ErrInvalidArgument
	}
	length := leUint32(rootBytes[4:8])
	if !verifyChecksum(rootBytes[:length]) {
		return nil, defs.ErrInvalidArgument
	}

	body := rootBytes[sdtHeaderLen:length]
	for off := 0; off+t.entrySize <= len(body); off += t.entrySize {
		var addr defs.Paddr
		if t.entrySize == 8 {
			addr = defs.Paddr(leUint64(body[off : off+8]))
		} else {
			addr = defs.Paddr(leUint32(body[off : off+4]))
		}
		t.entries = append(t.entries, addr)
	}
	return t, defs.ErrNone
}

// FindTable returns the raw bytes (header included) of the first table
// whose signature matches sig (e.g. "APIC", "MCFG"), after verifying its
// checksum.
func (t *Tables) FindTable(sig string) ([]byte, bool) {
	if t == nil || len(sig) != 4 {
		return nil, false
	}
	for _, addr := range t.entries {
		hdr := t.hal.DirectMap(addr)
		if len(hdr) < sdtHeaderLen {
			continue
		}
		if string(hdr[0:4]) != sig {
			continue
		}
		length := leUint32(hdr[4:8])
		if uint32(len(hdr)) < length {
			continue
		}
		table := hdr[:length]
		if !verifyChecksum(table) {
			continue
		}
		return table, true
	}
	return nil, false
}

func verifyChecksum(table []byte) bool {
	var sum byte
	for _, b := range table {
		sum += b
	}
	return sum == 0
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leUint64(b []byte) uint64 {
	return uint64(leUint32(b[0:4])) | uint64(leUint32(b[4:8]))<<32
}
