package abi_test

import (
	"context"
	"testing"

	"northport/defs"
	"northport/drivers"
	"northport/drivers/abi"
	"northport/irq"
	"northport/services/clock"
	"northport/services/config"
)

func newSurface(t *testing.T) (*abi.Surface, *drivers.Manager, []string) {
	t.Helper()
	mgr := drivers.NewManager("v1.0.0")
	cfg := config.Parse("log=debug retries=3")
	clk := clock.New(nil, []*irq.DpcQueue{{}})

	var lines []string
	s := abi.NewSurface(mgr, cfg, clk, func(level abi.LogLevel, line string) {
		lines = append(lines, line)
	})
	return s, mgr, lines
}

func TestGetConfigAndGetConfigNumber(t *testing.T) {
	s, _, _ := newSurface(t)

	if v, ok := s.GetConfig("log"); !ok || v != "debug" {
		t.Fatalf("GetConfig(log) = %q, %v; want debug, true", v, ok)
	}
	if n := s.GetConfigNumber("retries", -1); n != 3 {
		t.Fatalf("GetConfigNumber(retries) = %d, want 3", n)
	}
	if n := s.GetConfigNumber("missing", 42); n != 42 {
		t.Fatalf("GetConfigNumber(missing) = %d, want default 42", n)
	}
}

func TestLogLineAttributesToShadowDriver(t *testing.T) {
	mgr := drivers.NewManager("v1.0.0")
	cfg := config.Parse("")
	clk := clock.New(nil, []*irq.DpcQueue{{}})
	var lines []string
	s := abi.NewSurface(mgr, cfg, clk, func(level abi.LogLevel, line string) {
		lines = append(lines, line)
	})

	manifest := &drivers.DriverManifest{
		MachineName:  drivers.ManifestName{0x00, 0x00, 0x00, 0x01},
		FriendlyName: "test-nic",
		Entry: func(ctx context.Context, tags *drivers.InitTag) (drivers.DeviceApi, defs.Err_t) {
			s.LogLine(ctx, "link up", abi.LogInfo)
			return &drivers.BlockApi{}, defs.ErrNone
		},
	}
	if err := mgr.Register(manifest); err != defs.ErrNone {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := mgr.Bind(context.Background(), &drivers.InitTag{Type: drivers.TagMmio, Mmio: 1}); err != defs.ErrNone {
		t.Fatalf("Bind: %v", err)
	}

	if len(lines) != 1 || lines[0] != "(driver:test-nic) link up" {
		t.Fatalf("logged lines = %v, want one line attributed to test-nic", lines)
	}
}

func TestPanicPanicsWithTheGivenReason(t *testing.T) {
	s, _, _ := newSurface(t)
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("Panic did not panic")
		}
	}()
	s.Panic("double fault")
}

func TestAddDeviceApiPublishesASecondDeviceForTheShadowDriver(t *testing.T) {
	mgr := drivers.NewManager("v1.0.0")
	cfg := config.Parse("")
	clk := clock.New(nil, []*irq.DpcQueue{{}})
	s := abi.NewSurface(mgr, cfg, clk, nil)

	var secondID uint64
	manifest := &drivers.DriverManifest{
		MachineName: drivers.ManifestName{0x00, 0x00, 0x00, 0x02},
		Entry: func(ctx context.Context, tags *drivers.InitTag) (drivers.DeviceApi, defs.Err_t) {
			id, ok := s.AddDeviceApi(ctx, &drivers.SysPowerApi{})
			if !ok {
				t.Fatalf("AddDeviceApi failed from within Entry")
			}
			secondID = id
			return &drivers.BlockApi{}, defs.ErrNone
		},
	}
	if err := mgr.Register(manifest); err != defs.ErrNone {
		t.Fatalf("Register: %v", err)
	}
	_, firstID, err := mgr.Bind(context.Background(), &drivers.InitTag{Type: drivers.TagMmio, Mmio: 2})
	if err != defs.ErrNone {
		t.Fatalf("Bind: %v", err)
	}

	if secondID == 0 || secondID == firstID {
		t.Fatalf("AddDeviceApi returned id %d, want a fresh nonzero id distinct from %d", secondID, firstID)
	}
	if _, ok := mgr.DeviceApi(secondID); !ok {
		t.Fatalf("second device api not published")
	}
}

func TestExitThreadIsANoOpUntilWired(t *testing.T) {
	s, _, _ := newSurface(t)
	s.ExitThread(context.Background(), 0) // must not panic: ThreadExit is nil
}

func TestSendMagicKeyDispatchesRegisteredHandler(t *testing.T) {
	s, _, _ := newSurface(t)
	fired := false
	s.RegisterMagicKey(1, func() { fired = true })

	s.SendMagicKey(2) // unregistered, must be a no-op
	if fired {
		t.Fatalf("unregistered magic key fired a handler")
	}
	s.SendMagicKey(1)
	if !fired {
		t.Fatalf("registered magic key did not fire its handler")
	}
}
