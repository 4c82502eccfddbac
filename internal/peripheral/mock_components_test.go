package peripheral

import (
	"sync"

	"github.com/godbus/dbus/v5"

	"supportframe/internal/bluez"
	"supportframe/internal/telemetry"
)

// nopBus satisfies bluez.Bus for engine tests; nothing reaches a real bus.
type nopBus struct {
	mu     sync.Mutex
	closed bool
}

func (b *nopBus) Export(v any, path dbus.ObjectPath, iface string) error { return nil }
func (b *nopBus) Unexport(path dbus.ObjectPath, iface string) error      { return nil }
func (b *nopBus) Emit(path dbus.ObjectPath, name string, values ...any) error {
	return nil
}
func (b *nopBus) Call(path dbus.ObjectPath, method string, args ...any) error { return nil }
func (b *nopBus) CallAsync(path dbus.ObjectPath, method string, done func(error), args ...any) {
	done(nil)
}
func (b *nopBus) GetProperty(path dbus.ObjectPath, prop string) (any, error) {
	return nil, nil
}
func (b *nopBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *nopBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type mockAdvertiser struct {
	mu          sync.Mutex
	initErr     error
	startErr    error
	stopErr     error
	initialized bool
	advertising bool
	stopCalls   int
}

func (m *mockAdvertiser) Initialize(adapter string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initErr != nil {
		return m.initErr
	}
	m.initialized = true
	return nil
}

func (m *mockAdvertiser) StartAdvertising() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.advertising = true
	return nil
}

func (m *mockAdvertiser) StopAdvertising() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	m.advertising = false
	return m.stopErr
}

func (m *mockAdvertiser) Status() bluez.AdvertisementStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bluez.AdvertisementStatus{
		Advertising:  m.advertising,
		AdapterBound: m.initialized,
		Registration: "confirmed",
	}
}

type mockGatt struct {
	mu          sync.Mutex
	initErr     error
	startErr    error
	initialized bool
	running     bool
	stopCalls   int
	updates     []string
	subscribers int
	controlCb   func(string)
}

func (m *mockGatt) Initialize(adapter string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initErr != nil {
		return m.initErr
	}
	m.initialized = true
	return nil
}

func (m *mockGatt) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	return nil
}

func (m *mockGatt) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	m.running = false
	return nil
}

func (m *mockGatt) UpdateTelemetry(text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	m.updates = append(m.updates, text)
	return true
}

func (m *mockGatt) SetControlCallback(fn func(string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controlCb = fn
}

func (m *mockGatt) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribers
}

func (m *mockGatt) Status() bluez.GattStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bluez.GattStatus{
		Running:      m.running,
		AdapterBound: m.initialized,
		Registration: "confirmed",
		Subscribers:  m.subscribers,
	}
}

func (m *mockGatt) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

type mockSim struct {
	mu        sync.Mutex
	startFail bool
	running   bool
	mode      string
	cb        func(string)
	manual    []string
	current   telemetry.Frame
}

func (m *mockSim) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startFail || m.running {
		return false
	}
	m.running = true
	return true
}

func (m *mockSim) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	m.running = false
	return true
}

func (m *mockSim) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mockSim) SetCallback(fn func(string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = fn
}

func (m *mockSim) SetMode(mode string) bool {
	if _, ok := telemetry.ParamsForMode(mode); !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	return true
}

func (m *mockSim) Mode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *mockSim) SetManualFrame(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manual = append(m.manual, text)
}

func (m *mockSim) CurrentFrame() telemetry.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *mockSim) History(limit int) []telemetry.HistoryEntry { return nil }

func (m *mockSim) Status() telemetry.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return telemetry.Status{Running: m.running, Mode: m.mode}
}

func (m *mockSim) callback() func(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cb
}
