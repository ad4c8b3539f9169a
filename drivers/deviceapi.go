package drivers

// ApiType discriminates the members of the DeviceApi tagged union:
// SysPower{...}, Framebuffer{...}, Block{...}, etc, each prefixed by a
// common header.
type ApiType int

const (
	ApiSysPower ApiType = iota
	ApiFramebuffer
	ApiBlock
)

// ApiHeader is the common {id, type, driver_data, get_summary} prefix
// every concrete device-api struct embeds.
type ApiHeader struct {
	ID         uint64
	Type       ApiType
	DriverData any
	GetSummary func() string
}

// Header returns a itself so ApiHeader satisfies DeviceApi by embedding.
func (h *ApiHeader) Header() *ApiHeader { return h }

// DeviceApi is any published device-api object. Concrete kinds embed
// ApiHeader and add their own fields.
type DeviceApi interface {
	Header() *ApiHeader
}

// SysPowerApi is the system power-control device-api kind: power off and
// reboot entry points supplied by whichever driver owns the platform's
// power management (ACPI, a PSCI node, a qemu isa-debug-exit device).
type SysPowerApi struct {
	ApiHeader
	PowerOff func()
	Reboot   func()
}

// FramebufferApi exposes a linear framebuffer's geometry and backing
// memory to consumers like a boot-time console.
type FramebufferApi struct {
	ApiHeader
	Width, Height, Stride uint32
	BitsPerPixel          uint8
	Base                  uintptr
}

// BlockApi exposes a block device's read/write entry points. ReadSectors/
// WriteSectors operate in units of SectorSize bytes starting at lba.
type BlockApi struct {
	ApiHeader
	SectorSize  uint32
	SectorCount uint64
	ReadSectors func(lba uint64, dst []byte) error
	WriteSectors func(lba uint64, src []byte) error
}
