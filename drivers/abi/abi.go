// Package abi is the driver ABI surface: the set of entry points a loaded
// driver module calls into the kernel through. Grounded on
// original_source/kernel/interfaces/driver/{Drivers,General,Time}.cpp,
// each of which implements exactly one npk_* function under extern "C".
// Since this module never links a real cgo driver image, the
// DRIVER_API_FUNC / REQUIRED marker pair becomes ordinary exported
// methods on Surface, with each REQUIRED argument checked by an explicit
// panic. The file carries no build tag; it is compiled into every build.
package abi

import (
	"context"
	"fmt"

	"northport/drivers"
	"northport/services/clock"
	"northport/services/config"
)

// LogLevel mirrors the npk_log_level the driver ABI passes to npk_log.
type LogLevel int

const (
	LogTrace LogLevel = iota
	LogDebug
	LogInfo
	LogWarn
	LogError
)

// Sink receives formatted log lines from Log; the kernel installs its own
// log-sink chain (console, serial, ring buffer) here at boot.
type Sink func(level LogLevel, line string)

// Surface bundles the kernel-side state the driver ABI functions close
// over: the driver manager (for AddDeviceApi/RemoveDeviceApi/dispatch
// attribution), the config store, the clock, and a log sink. It plays the
// role of original_source's DriverManager::Global()/singleton services,
// rendered as an explicit value instead of package-level globals so tests
// can build an isolated instance.
type Surface struct {
	Manager *drivers.Manager
	Config  *config.Store
	Clock   *clock.Clock
	Log     Sink

	// ThreadExit backs ExitThread; nil until the kernel wires it at boot.
	ThreadExit ThreadExitFunc

	magicKeys map[uint32]func()
}

// NewSurface builds a Surface. log may be nil, in which case Log is a
// no-op.
func NewSurface(mgr *drivers.Manager, cfg *config.Store, clk *clock.Clock, log Sink) *Surface {
	if log == nil {
		log = func(LogLevel, string) {}
	}
	return &Surface{Manager: mgr, Config: cfg, Clock: clk, Log: log, magicKeys: make(map[uint32]func())}
}

// AddDeviceApi implements npk_add_device_api: it publishes api on behalf
// of ctx's shadow driver, returning the fresh device_id. api must not be
// nil: it is a REQUIRED argument and a nil one is a programmer error.
func (s *Surface) AddDeviceApi(ctx context.Context, api drivers.DeviceApi) (uint64, bool) {
	if api == nil {
		panic("abi: npk_add_device_api: REQUIRED argument api is nil")
	}
	shadow, ok := drivers.Shadow(ctx)
	if !ok {
		return 0, false
	}
	_ = shadow
	// Publication happens through Manager.Bind's own bookkeeping in this
	// rendering (the DeviceApi a manifest's Entry returns is published
	// there); a driver calling AddDeviceApi again later, e.g. to expose a
	// second sub-device, goes through the same path Bind uses.
	id, err := s.Manager.PublishFor(shadow, api)
	return id, err
}

// RemoveDeviceApi implements npk_remove_device_api: it tears down a
// previously published device.
func (s *Surface) RemoveDeviceApi(ctx context.Context, id uint64) bool {
	return s.Manager.RemoveDevice(ctx, id) == 0
}

// LogLine implements npk_log: it formats and dispatches a log line
// attributed to ctx's shadow driver. str is REQUIRED.
func (s *Surface) LogLine(ctx context.Context, str string, level LogLevel) {
	if str == "" {
		panic("abi: npk_log: REQUIRED argument str is empty")
	}
	who := "kernel"
	if shadow, ok := drivers.Shadow(ctx); ok {
		who = shadow.Manifest.FriendlyName
	}
	s.Log(level, fmt.Sprintf("(driver:%s) %s", who, str))
}

// Panic implements npk_panic: a driver asking the kernel to panic on its
// behalf. why is REQUIRED.
func (s *Surface) Panic(why string) {
	if why == "" {
		panic("abi: npk_panic: REQUIRED argument why is empty")
	}
	panic("driver panic: " + why)
}

// GetConfig implements npk_get_config.
func (s *Surface) GetConfig(key string) (string, bool) {
	return s.Config.Get(key)
}

// GetConfigNumber implements npk_get_config_num.
func (s *Surface) GetConfigNumber(key string, orDefault int64) int64 {
	return s.Config.GetNumber(key, orDefault)
}

// IopHandle identifies an in-flight I/O operation begun via BeginIop.
type IopHandle uint64

// BeginIop implements npk_begin_iop: desc is an opaque, driver-defined
// description of the operation, kept only for diagnostics in this
// rendering (the original pairs it with an I/O-pending accounting scheme
// left out here to keep the driver-facing surface minimal).
func (s *Surface) BeginIop(desc string) IopHandle {
	return IopHandle(0)
}

// EndIop implements npk_end_iop.
func (s *Surface) EndIop(h IopHandle) {}

// ThreadExitFunc implements npk_thread_exit; a driver's own background
// thread asking to terminate. The kernel installs one per Surface at boot,
// closing over the calling CPU's scheduler, so this package never imports
// sched directly -- Surface only needs "call this when a driver thread
// wants to die", not scheduler internals.
type ThreadExitFunc func(ctx context.Context, code int)

// ExitThread implements npk_thread_exit. Before the kernel installs
// ThreadExit (e.g. in a test Surface), it is a no-op.
func (s *Surface) ExitThread(ctx context.Context, code int) {
	if s.ThreadExit != nil {
		s.ThreadExit(ctx, code)
	}
}

// GetMonotonicTime implements npk_get_monotonic_time.
func (s *Surface) GetMonotonicTime() clock.Snapshot {
	return s.Clock.Snapshot()
}

// RegisterMagicKey installs a handler for a debugger magic-key id. The
// debugger subsystem itself is out of scope here; this registry exists so
// npk_send_magic_key has somewhere to dispatch to without the hook being
// a hardcoded no-op forever.
func (s *Surface) RegisterMagicKey(id uint32, handler func()) {
	s.magicKeys[id] = handler
}

// SendMagicKey implements npk_send_magic_key. Unregistered ids are
// silently ignored, matching a debugger-absent build where every magic
// key is inert.
func (s *Surface) SendMagicKey(id uint32) {
	if h, ok := s.magicKeys[id]; ok {
		h()
	}
}
