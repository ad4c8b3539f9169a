package drivers_test

import (
	"context"
	"strings"
	"testing"

	"northport/defs"
	"northport/drivers"
)

func pciTags(vendor, device uint16) *drivers.InitTag {
	return &drivers.InitTag{Type: drivers.TagPci, Pci: drivers.PciAddress{VendorID: vendor, DeviceID: device}}
}

func TestBindFindsMatchingManifestAndPublishesDeviceApi(t *testing.T) {
	m := drivers.NewManager("v1.0.0")

	var gotShadow *drivers.LoadedDriver
	manifest := &drivers.DriverManifest{
		MachineName:  drivers.ManifestName{0x10, 0xec, 0x00, 0x01},
		FriendlyName: "rtl-test",
		Entry: func(ctx context.Context, tags *drivers.InitTag) (drivers.DeviceApi, defs.Err_t) {
			gotShadow, _ = drivers.Shadow(ctx)
			return &drivers.BlockApi{SectorSize: 512}, defs.ErrNone
		},
	}
	if err := m.Register(manifest); err != defs.ErrNone {
		t.Fatalf("Register: %v", err)
	}

	ld, deviceID, err := m.Bind(context.Background(), pciTags(0x10ec, 0x0001))
	if err != defs.ErrNone {
		t.Fatalf("Bind: %v", err)
	}
	if ld != gotShadow {
		t.Fatalf("shadow handle in Entry's ctx = %v, want %v", gotShadow, ld)
	}
	if deviceID == 0 {
		t.Fatalf("Bind returned zero device id")
	}

	api, ok := m.DeviceApi(deviceID)
	if !ok {
		t.Fatalf("DeviceApi(%d) not found", deviceID)
	}
	if api.Header().ID != deviceID {
		t.Fatalf("published api header ID = %d, want %d", api.Header().ID, deviceID)
	}
}

func TestBindNoMatchingManifestReturnsNotFound(t *testing.T) {
	m := drivers.NewManager("v1.0.0")
	_, _, err := m.Bind(context.Background(), pciTags(0xffff, 0xffff))
	if err != defs.ErrNotFound {
		t.Fatalf("Bind with no registered manifests: err = %v, want ErrNotFound", err)
	}
}

func TestRegisterRejectsIncompatibleMinABI(t *testing.T) {
	m := drivers.NewManager("v1.0.0")
	manifest := &drivers.DriverManifest{
		MachineName: drivers.ManifestName{1},
		MinABI:      "v2.0.0",
		Entry:       func(context.Context, *drivers.InitTag) (drivers.DeviceApi, defs.Err_t) { return nil, defs.ErrNone },
	}
	if err := m.Register(manifest); err != defs.ErrNotSupported {
		t.Fatalf("Register with newer MinABI: err = %v, want ErrNotSupported", err)
	}
}

func TestRemoveDeviceCallsDeinitOnceLastDeviceGone(t *testing.T) {
	m := drivers.NewManager("v1.0.0")
	deinitCalled := false
	manifest := &drivers.DriverManifest{
		MachineName: drivers.ManifestName{0xaa, 0xbb, 0xcc, 0xdd},
		Entry: func(ctx context.Context, tags *drivers.InitTag) (drivers.DeviceApi, defs.Err_t) {
			return &drivers.SysPowerApi{}, defs.ErrNone
		},
		Deinit: func(ctx context.Context) { deinitCalled = true },
	}
	if err := m.Register(manifest); err != defs.ErrNone {
		t.Fatalf("Register: %v", err)
	}

	_, deviceID, err := m.Bind(context.Background(), &drivers.InitTag{Type: drivers.TagMmio, Mmio: 0xaabbccdd})
	if err != defs.ErrNone {
		t.Fatalf("Bind: %v", err)
	}

	if err := m.RemoveDevice(context.Background(), deviceID); err != defs.ErrNone {
		t.Fatalf("RemoveDevice: %v", err)
	}
	if !deinitCalled {
		t.Fatalf("Deinit was not called after removing the only device")
	}
	if _, ok := m.DeviceApi(deviceID); ok {
		t.Fatalf("device api entry still present after RemoveDevice")
	}
}

func TestHandleEventDispatchesToOwningDriver(t *testing.T) {
	m := drivers.NewManager("v1.0.0")
	var gotType drivers.EventType
	manifest := &drivers.DriverManifest{
		MachineName: drivers.ManifestName{0x00, 0x01, 0x00, 0x02},
		Entry: func(ctx context.Context, tags *drivers.InitTag) (drivers.DeviceApi, defs.Err_t) {
			return &drivers.SysPowerApi{}, defs.ErrNone
		},
		OnEvent: func(ctx context.Context, deviceID uint64, typ drivers.EventType, arg any) {
			gotType = typ
		},
	}
	if err := m.Register(manifest); err != defs.ErrNone {
		t.Fatalf("Register: %v", err)
	}
	_, deviceID, err := m.Bind(context.Background(), pciTags(1, 2))
	if err != defs.ErrNone {
		t.Fatalf("Bind: %v", err)
	}

	if err := m.HandleEvent(context.Background(), deviceID, drivers.EventSurpriseRemoval, nil); err != defs.ErrNone {
		t.Fatalf("HandleEvent: %v", err)
	}
	if gotType != drivers.EventSurpriseRemoval {
		t.Fatalf("OnEvent saw type %v, want EventSurpriseRemoval", gotType)
	}
}

func TestDotGraphIncludesManifestAndBoundInstance(t *testing.T) {
	m := drivers.NewManager("v1.0.0")
	manifest := &drivers.DriverManifest{
		MachineName:  drivers.ManifestName{0x00, 0x03, 0x00, 0x04},
		FriendlyName: "graph-test-driver",
		Entry: func(ctx context.Context, tags *drivers.InitTag) (drivers.DeviceApi, defs.Err_t) {
			return &drivers.SysPowerApi{}, defs.ErrNone
		},
	}
	if err := m.Register(manifest); err != defs.ErrNone {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := m.Bind(context.Background(), pciTags(3, 4)); err != defs.ErrNone {
		t.Fatalf("Bind: %v", err)
	}

	dot := m.DotGraph()
	if !strings.Contains(dot, "digraph drivers") {
		t.Fatalf("DotGraph = %q, want a digraph header", dot)
	}
	if !strings.Contains(dot, "graph-test-driver") {
		t.Fatalf("DotGraph = %q, want it to mention the registered manifest", dot)
	}
	if !strings.Contains(dot, "loaded:") {
		t.Fatalf("DotGraph = %q, want it to mention the bound instance", dot)
	}
}
