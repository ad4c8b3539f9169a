// Package drivers is the driver manager and init-tag pipeline. Grounded
// on original_source/kernel/include/drivers/DriverManifest.h and
// kernel/include/drivers/GenericDriver.h for the manifest/entry shape,
// and on biscuit/src/msi's small map-plus-mutex registry style for the
// registry itself -- biscuit has no driver manager of its own (its drivers
// are compiled in), so the registry bookkeeping here is original to this
// rendering, built the way biscuit builds its other small global tables.
package drivers

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"northport/defs"
	"northport/lock"
)

// ManifestName is the opaque byte pattern a DriverManifest is matched
// against. It must equal, byte for byte and in length, what
// machineNameFromTags derives for the probe that triggered binding: the
// four bytes of a PCI vendor:device pair, or the low four bytes of an
// MMIO base address.
type ManifestName []byte

func (n ManifestName) equal(o ManifestName) bool {
	if len(n) != len(o) {
		return false
	}
	for i := range n {
		if n[i] != o[i] {
			return false
		}
	}
	return true
}

// EntryFunc is a manifest's entry point, invoked once per Bind with the
// init-tag chain describing the specific device instance. It returns the
// DeviceApi the driver publishes, or ErrNotFound/etc if the device turned
// out not to be usable once probed more closely.
type EntryFunc func(ctx context.Context, tags *InitTag) (DeviceApi, defs.Err_t)

// DeinitFunc tears down a loaded driver instance, called once its last
// published device-api entry has been removed.
type DeinitFunc func(ctx context.Context)

// EventHandler dispatches a driver-model "handle_event" call to the
// driver instance that published deviceID.
type EventHandler func(ctx context.Context, deviceID uint64, typ EventType, arg any)

// EventType enumerates driver-model event kinds; drivers may define their
// own beyond the handful every driver understands.
type EventType uint64

const (
	EventUnknown EventType = iota
	EventSurpriseRemoval
)

// DriverManifest is a registry entry: the global table of DriverManifest
// entries is indexed by machine_name.
type DriverManifest struct {
	MachineName  ManifestName
	FriendlyName string
	// MinABI is the minimum driver-ABI version (semver) this manifest
	// requires, checked against the kernel's own ABI version at
	// Register time.
	MinABI  string
	Entry   EntryFunc
	Deinit  DeinitFunc
	OnEvent EventHandler
}

// LoadedDriver is the live-instance record created by Bind: one manifest
// can have many LoadedDriver instances if several devices match it.
type LoadedDriver struct {
	ID        uint64
	Manifest  *DriverManifest
	Tags      *InitTag
	DeviceIDs []uint64
}

// Manager owns the manifest registry, the loaded-driver table, and the
// device-API table. The registry and device-API table share a single
// TicketLock.
type Manager struct {
	mu        lock.TicketLock
	kernelABI string

	manifests []*DriverManifest

	nextLoadedID uint64
	loaded       map[uint64]*LoadedDriver

	nextDeviceID uint64
	apis         map[uint64]deviceApiEntry
}

type deviceApiEntry struct {
	api      DeviceApi
	loadedID uint64
}

// NewManager builds an empty Manager. kernelABI is the running kernel's
// own driver-ABI version string, e.g. "v1.2.0"; manifests declaring a
// MinABI the kernel doesn't satisfy are rejected at Register time.
func NewManager(kernelABI string) *Manager {
	return &Manager{
		kernelABI: kernelABI,
		loaded:    make(map[uint64]*LoadedDriver),
		apis:      make(map[uint64]deviceApiEntry),
	}
}

// Register adds a manifest to the registry. It rejects a manifest whose
// MinABI is not valid semver, or that requires a newer ABI generation
// than this kernel provides.
func (m *Manager) Register(manifest *DriverManifest) defs.Err_t {
	if manifest == nil || manifest.Entry == nil {
		panic("drivers: Register of nil manifest or manifest with no Entry")
	}
	if manifest.MinABI != "" {
		if !semver.IsValid(manifest.MinABI) {
			return defs.ErrInvalidArgument
		}
		if semver.Compare(manifest.MinABI, m.kernelABI) > 0 {
			return defs.ErrNotSupported
		}
	}
	m.mu.Lock()
	m.manifests = append(m.manifests, manifest)
	m.mu.Unlock()
	return defs.ErrNone
}

// findManifestLocked returns the first registered manifest whose
// MachineName matches name. Must be called with m.mu held.
func (m *Manager) findManifestLocked(name ManifestName) (*DriverManifest, bool) {
	for _, man := range m.manifests {
		if man.MachineName.equal(name) {
			return man, true
		}
	}
	return nil, false
}

// shadowKey is the context.Context key Bind stamps the current
// LoadedDriver under, standing in for a current-thread-local shadow
// handle -- Go gives entry functions no thread-local storage, so the
// shadow travels explicitly through ctx the same way
// arch.HAL.CurrentCpu threads a CPU id through ctx instead of a per-CPU
// base register.
type shadowKey struct{}

// Shadow returns the LoadedDriver a driver-ABI call is being made on
// behalf of, so abi-surface functions can attribute themselves without a
// caller-supplied handle.
func Shadow(ctx context.Context) (*LoadedDriver, bool) {
	d, ok := ctx.Value(shadowKey{}).(*LoadedDriver)
	return d, ok
}

// Bind builds the init-tag chain's implied machine name, finds the first
// matching manifest, instantiates a LoadedDriver, and invokes the
// manifest's entry point with the shadow handle installed in ctx. The
// DeviceApi the entry returns is published under a fresh device_id.
func (m *Manager) Bind(ctx context.Context, tags *InitTag) (*LoadedDriver, uint64, defs.Err_t) {
	name, ok := machineNameFromTags(tags)
	if !ok {
		return nil, 0, defs.ErrInvalidArgument
	}

	m.mu.Lock()
	manifest, ok := m.findManifestLocked(name)
	if !ok {
		m.mu.Unlock()
		return nil, 0, defs.ErrNotFound
	}
	m.nextLoadedID++
	ld := &LoadedDriver{ID: m.nextLoadedID, Manifest: manifest, Tags: tags}
	m.loaded[ld.ID] = ld
	m.mu.Unlock()

	entryCtx := context.WithValue(ctx, shadowKey{}, ld)
	api, err := manifest.Entry(entryCtx, tags)
	if err != defs.ErrNone {
		m.mu.Lock()
		delete(m.loaded, ld.ID)
		m.mu.Unlock()
		return nil, 0, err
	}

	m.mu.Lock()
	m.nextDeviceID++
	deviceID := m.nextDeviceID
	m.apis[deviceID] = deviceApiEntry{api: api, loadedID: ld.ID}
	ld.DeviceIDs = append(ld.DeviceIDs, deviceID)
	m.mu.Unlock()
	api.Header().ID = deviceID

	return ld, deviceID, defs.ErrNone
}

// HandleEvent dispatches to the driver that published deviceID.
func (m *Manager) HandleEvent(ctx context.Context, deviceID uint64, typ EventType, arg any) defs.Err_t {
	m.mu.Lock()
	entry, ok := m.apis[deviceID]
	var ld *LoadedDriver
	if ok {
		ld = m.loaded[entry.loadedID]
	}
	m.mu.Unlock()
	if !ok || ld == nil {
		return defs.ErrNotFound
	}
	if ld.Manifest.OnEvent == nil {
		return defs.ErrNotSupported
	}
	ld.Manifest.OnEvent(context.WithValue(ctx, shadowKey{}, ld), deviceID, typ, arg)
	return defs.ErrNone
}

// RemoveDevice tears down deviceID's api entry, and -- once the owning
// driver has no devices left -- calls its Deinit. Unloading the backing
// image is the caller's job once every LoadedDriver referencing it is
// gone (see LoadImage/UnloadImage).
func (m *Manager) RemoveDevice(ctx context.Context, deviceID uint64) defs.Err_t {
	m.mu.Lock()
	entry, ok := m.apis[deviceID]
	if !ok {
		m.mu.Unlock()
		return defs.ErrNotFound
	}
	delete(m.apis, deviceID)
	ld := m.loaded[entry.loadedID]
	if ld != nil {
		for i, id := range ld.DeviceIDs {
			if id == deviceID {
				ld.DeviceIDs = append(ld.DeviceIDs[:i], ld.DeviceIDs[i+1:]...)
				break
			}
		}
	}
	lastDevice := ld != nil && len(ld.DeviceIDs) == 0
	if lastDevice {
		delete(m.loaded, ld.ID)
	}
	m.mu.Unlock()

	if lastDevice && ld.Manifest.Deinit != nil {
		ld.Manifest.Deinit(context.WithValue(ctx, shadowKey{}, ld))
	}
	return defs.ErrNone
}

// PublishFor publishes api on behalf of an already-loaded driver,
// returning the fresh device_id. Used by drivers/abi's AddDeviceApi when
// a driver publishes an additional device after its initial Bind (e.g. a
// multi-function PCI card exposing more than one sub-device).
func (m *Manager) PublishFor(ld *LoadedDriver, api DeviceApi) (uint64, bool) {
	if ld == nil || api == nil {
		return 0, false
	}
	m.mu.Lock()
	m.nextDeviceID++
	deviceID := m.nextDeviceID
	m.apis[deviceID] = deviceApiEntry{api: api, loadedID: ld.ID}
	ld.DeviceIDs = append(ld.DeviceIDs, deviceID)
	m.mu.Unlock()
	api.Header().ID = deviceID
	return deviceID, true
}

// DeviceApi looks up a published device-api object by id.
func (m *Manager) DeviceApi(deviceID uint64) (DeviceApi, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.apis[deviceID]
	return entry.api, ok
}

func (m *Manager) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("drivers.Manager{manifests=%d loaded=%d apis=%d}", len(m.manifests), len(m.loaded), len(m.apis))
}

// DotGraph renders the registry as a Graphviz DOT digraph: one node per
// registered manifest, one per bound LoadedDriver, one per published
// device-api, with edges manifest->instance->device. Grounded on the
// "go mod graph" to DOT rendering idiom -- the same shape, pointed at
// this registry instead of module dependencies.
func (m *Manager) DotGraph() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	b.WriteString("digraph drivers {\n")
	for _, manifest := range m.manifests {
		b.WriteString(fmt.Sprintf("    %q [shape=box];\n", manifest.FriendlyName))
	}
	for _, ld := range m.loaded {
		instance := fmt.Sprintf("loaded:%d", ld.ID)
		b.WriteString(fmt.Sprintf("    %q -> %q;\n", ld.Manifest.FriendlyName, instance))
		for _, deviceID := range ld.DeviceIDs {
			b.WriteString(fmt.Sprintf("    %q -> %q;\n", instance, fmt.Sprintf("device:%d", deviceID)))
		}
	}
	b.WriteString("}\n")
	return b.String()
}
