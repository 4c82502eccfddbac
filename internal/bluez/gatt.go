package bluez

import (
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// Characteristic is one GATT characteristic object exported on the bus.
// Value mutation is serialized by its own mutex because local updates arrive
// from the simulator goroutine while reads and writes arrive from the bus
// dispatch goroutines.
type Characteristic struct {
	bus         Bus
	path        dbus.ObjectPath
	servicePath dbus.ObjectPath
	uuid        string
	flags       []string

	mu        sync.Mutex
	value     []byte
	notifying bool
	writeFn   func([]byte)
}

func newCharacteristic(bus Bus, servicePath dbus.ObjectPath, index int, uuid string, flags []string) *Characteristic {
	return &Characteristic{
		bus:         bus,
		path:        dbus.ObjectPath(fmt.Sprintf("%s/char%d", servicePath, index)),
		servicePath: servicePath,
		uuid:        uuid,
		flags:       flags,
	}
}

// ReadValue serves org.bluez.GattCharacteristic1.ReadValue. Idempotent, no
// state mutation.
func (c *Characteristic) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slog.Debug("[GATT] read", "uuid", c.uuid)
	out := make([]byte, len(c.value))
	copy(out, c.value)
	return out, nil
}

// WriteValue serves org.bluez.GattCharacteristic1.WriteValue. The write
// handler, if any, runs outside the value lock; a panic there is recovered
// so nothing escapes into the bus dispatch path.
func (c *Characteristic) WriteValue(value []byte, options map[string]dbus.Variant) *dbus.Error {
	c.mu.Lock()
	c.value = append([]byte(nil), value...)
	fn := c.writeFn
	c.mu.Unlock()

	slog.Debug("[GATT] write", "uuid", c.uuid, "len", len(value))
	if fn != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("[GATT] write handler panicked", "uuid", c.uuid, "panic", r)
				}
			}()
			fn(value)
		}()
	}
	return nil
}

// StartNotify serves org.bluez.GattCharacteristic1.StartNotify. Duplicate
// subscriptions are idempotent no-ops.
func (c *Characteristic) StartNotify() *dbus.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notifying {
		slog.Warn("[GATT] already notifying", "uuid", c.uuid)
		return nil
	}
	c.notifying = true
	slog.Info("[GATT] notifications enabled", "uuid", c.uuid)
	return nil
}

// StopNotify serves org.bluez.GattCharacteristic1.StopNotify. Duplicate
// unsubscriptions are idempotent no-ops.
func (c *Characteristic) StopNotify() *dbus.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.notifying {
		slog.Warn("[GATT] not notifying", "uuid", c.uuid)
		return nil
	}
	c.notifying = false
	slog.Info("[GATT] notifications disabled", "uuid", c.uuid)
	return nil
}

// GetAll serves org.freedesktop.DBus.Properties.GetAll.
func (c *Characteristic) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != IfaceGattCharacteristic {
		return nil, dbus.NewError(errInvalidArgs, []any{"invalid interface"})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.propertiesLocked(), nil
}

// SetValue stores a locally produced value and emits a PropertiesChanged
// signal when a subscriber is active.
func (c *Characteristic) SetValue(value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = append([]byte(nil), value...)
	if !c.notifying {
		return
	}
	err := c.bus.Emit(c.path, IfaceProperties+".PropertiesChanged",
		IfaceGattCharacteristic,
		map[string]dbus.Variant{"Value": dbus.MakeVariant(c.value)},
		[]string{})
	if err != nil {
		slog.Warn("[GATT] notify emit failed", "uuid", c.uuid, "error", err)
	}
}

// Notifying reports whether a subscriber is active.
func (c *Characteristic) Notifying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifying
}

func (c *Characteristic) propertiesLocked() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Service": dbus.MakeVariant(c.servicePath),
		"UUID":    dbus.MakeVariant(c.uuid),
		"Flags":   dbus.MakeVariant(c.flags),
		"Value":   dbus.MakeVariant(append([]byte(nil), c.value...)),
	}
}

func (c *Characteristic) objectProperties() map[string]map[string]dbus.Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]map[string]dbus.Variant{
		IfaceGattCharacteristic: c.propertiesLocked(),
	}
}

// Service is one GATT service object owning its characteristics.
type Service struct {
	path            dbus.ObjectPath
	uuid            string
	primary         bool
	characteristics []*Characteristic
}

// GetAll serves org.freedesktop.DBus.Properties.GetAll.
func (s *Service) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != IfaceGattService {
		return nil, dbus.NewError(errInvalidArgs, []any{"invalid interface"})
	}
	return s.properties(), nil
}

func (s *Service) properties() map[string]dbus.Variant {
	paths := make([]dbus.ObjectPath, len(s.characteristics))
	for i, c := range s.characteristics {
		paths[i] = c.path
	}
	return map[string]dbus.Variant{
		"UUID":            dbus.MakeVariant(s.uuid),
		"Primary":         dbus.MakeVariant(s.primary),
		"Characteristics": dbus.MakeVariant(paths),
	}
}

// application is the GATT application root implementing
// org.freedesktop.DBus.ObjectManager for BlueZ's enumeration.
type application struct {
	services []*Service
}

// GetManagedObjects returns, per published object, its interface-to-
// properties map.
func (a *application) GetManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
	response := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
	for _, svc := range a.services {
		response[svc.path] = map[string]map[string]dbus.Variant{
			IfaceGattService: svc.properties(),
		}
		for _, c := range svc.characteristics {
			response[c.path] = c.objectProperties()
		}
	}
	return response, nil
}

// GattStatus is a snapshot of the server state.
type GattStatus struct {
	Running      bool   `json:"running"`
	AdapterBound bool   `json:"adapter_bound"`
	Registration string `json:"registration"`
	Subscribers  int    `json:"subscribers"`
}

// GattServer owns the service/characteristic tree and drives application
// registration against the adapter's GattManager1.
type GattServer struct {
	bus Bus

	mu          sync.Mutex
	adapterPath dbus.ObjectPath
	bound       bool
	running     bool
	regState    RegState
	app         *application
	telemetry   *Characteristic
	deviceInfo  *Characteristic
	control     *Characteristic
	controlCb   func(string)
}

// NewGattServer creates a server publishing the SupportFrame service tree.
func NewGattServer(bus Bus) *GattServer {
	return &GattServer{bus: bus}
}

// Initialize binds to the adapter's GATT manager. An unreachable daemon or
// adapter yields ErrAdapterUnavailable.
func (s *GattServer) Initialize(adapter string) error {
	if adapter == "" {
		adapter = DefaultAdapter
	}
	path := dbus.ObjectPath(adapter)

	if _, err := s.bus.GetProperty(path, IfaceAdapter+".Address"); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAdapterUnavailable, adapter, err)
	}

	s.mu.Lock()
	s.adapterPath = path
	s.bound = true
	s.mu.Unlock()

	slog.Info("[GATT] server initialized", "adapter", adapter)
	return nil
}

// Start constructs the service tree, publishes all objects, and issues the
// asynchronous application registration. Returns once the request is issued.
// No-op if already running.
func (s *GattServer) Start() error {
	s.mu.Lock()

	if !s.bound {
		s.mu.Unlock()
		return fmt.Errorf("bluez: gatt server not initialized")
	}
	if s.running {
		s.mu.Unlock()
		slog.Warn("[GATT] server already running")
		return nil
	}

	s.telemetry = newCharacteristic(s.bus, servicePath, 0, TelemetryUUID, []string{"read", "notify"})
	s.telemetry.value = []byte(InitialTelemetryValue)
	s.deviceInfo = newCharacteristic(s.bus, servicePath, 1, DeviceInfoUUID, []string{"read"})
	s.deviceInfo.value = []byte(DeviceInfoValue)
	s.control = newCharacteristic(s.bus, servicePath, 2, ControlUUID, []string{"write"})
	s.control.writeFn = s.onControlWrite

	svc := &Service{
		path:            servicePath,
		uuid:            ServiceUUID,
		primary:         true,
		characteristics: []*Characteristic{s.telemetry, s.deviceInfo, s.control},
	}
	s.app = &application{services: []*Service{svc}}

	if err := s.exportLocked(svc); err != nil {
		s.clearTreeLocked()
		s.mu.Unlock()
		return fmt.Errorf("bluez: export gatt application: %w", err)
	}

	s.running = true
	s.regState = RegRequested
	adapter := s.adapterPath
	s.mu.Unlock()

	// Issued outside the lock so a fast verdict cannot deadlock against it.
	s.bus.CallAsync(adapter, IfaceGattManager+".RegisterApplication",
		s.onRegisterResult, applicationPath, map[string]dbus.Variant{})

	slog.Info("[GATT] application registration requested", "service", ServiceUUID)
	return nil
}

// Stop unregisters the application and unpublishes all objects. No-op
// (success) when nothing is published.
func (s *GattServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.app == nil {
		slog.Warn("[GATT] server not running")
		return nil
	}

	if err := s.bus.Call(s.adapterPath,
		IfaceGattManager+".UnregisterApplication", applicationPath); err != nil {
		slog.Warn("[GATT] unregister application failed", "error", err)
	}
	s.unexportLocked()
	s.clearTreeLocked()
	s.running = false
	s.regState = RegIdle

	slog.Info("[GATT] server stopped")
	return nil
}

// UpdateTelemetry writes new bytes into the telemetry characteristic and
// notifies an active subscriber. Returns false when the server is not
// running.
func (s *GattServer) UpdateTelemetry(text string) bool {
	s.mu.Lock()
	running, char := s.running, s.telemetry
	s.mu.Unlock()

	if !running || char == nil {
		slog.Debug("[GATT] telemetry update dropped, server not running")
		return false
	}
	char.SetValue([]byte(text))
	return true
}

// SetControlCallback registers the function invoked with the decoded text of
// every control characteristic write.
func (s *GattServer) SetControlCallback(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlCb = fn
}

// Running reports whether the server has been started.
func (s *GattServer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SubscriberCount returns the number of characteristics with an active
// subscriber.
func (s *GattServer) SubscriberCount() int {
	s.mu.Lock()
	chars := []*Characteristic{s.telemetry, s.deviceInfo, s.control}
	s.mu.Unlock()

	count := 0
	for _, c := range chars {
		if c != nil && c.Notifying() {
			count++
		}
	}
	return count
}

// Status returns a snapshot of the server state.
func (s *GattServer) Status() GattStatus {
	s.mu.Lock()
	status := GattStatus{
		Running:      s.running,
		AdapterBound: s.bound,
		Registration: s.regState.String(),
	}
	s.mu.Unlock()
	status.Subscribers = s.SubscriberCount()
	return status
}

// onControlWrite decodes a control write and forwards it to the callback.
// Malformed encoding is logged and dropped; nothing propagates back into the
// bus dispatch path.
func (s *GattServer) onControlWrite(value []byte) {
	if !utf8.Valid(value) {
		slog.Warn("[GATT] dropping control write with invalid encoding", "len", len(value))
		return
	}
	command := string(value)
	slog.Info("[GATT] control command received", "command", command)

	s.mu.Lock()
	cb := s.controlCb
	s.mu.Unlock()
	if cb != nil {
		cb(command)
	}
}

func (s *GattServer) onRegisterResult(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.app == nil {
		// Stopped before the verdict arrived.
		return
	}
	if err != nil {
		s.regState = RegRejected
		s.running = false
		slog.Error("[GATT] application registration rejected", "error", err)
		return
	}
	s.regState = RegConfirmed
	slog.Info("[GATT] application registered, services are live")
}

func (s *GattServer) exportLocked(svc *Service) error {
	if err := s.bus.Export(s.app, applicationPath, IfaceObjectManager); err != nil {
		return err
	}
	if err := s.bus.Export(svc, svc.path, IfaceProperties); err != nil {
		return err
	}
	if err := s.bus.Export(introspect.NewIntrospectable(serviceNode(svc.path)),
		svc.path, IfaceIntrospectable); err != nil {
		return err
	}
	for _, c := range svc.characteristics {
		if err := s.bus.Export(c, c.path, IfaceGattCharacteristic); err != nil {
			return err
		}
		if err := s.bus.Export(c, c.path, IfaceProperties); err != nil {
			return err
		}
		if err := s.bus.Export(introspect.NewIntrospectable(characteristicNode(c.path)),
			c.path, IfaceIntrospectable); err != nil {
			return err
		}
	}
	return nil
}

func (s *GattServer) unexportLocked() {
	unexport := func(path dbus.ObjectPath, ifaces ...string) {
		for _, iface := range ifaces {
			if err := s.bus.Unexport(path, iface); err != nil {
				slog.Warn("[GATT] unexport failed", "path", path, "iface", iface, "error", err)
			}
		}
	}
	unexport(applicationPath, IfaceObjectManager)
	for _, svc := range s.app.services {
		unexport(svc.path, IfaceProperties, IfaceIntrospectable)
		for _, c := range svc.characteristics {
			unexport(c.path, IfaceGattCharacteristic, IfaceProperties, IfaceIntrospectable)
		}
	}
}

func (s *GattServer) clearTreeLocked() {
	s.app = nil
	s.telemetry = nil
	s.deviceInfo = nil
	s.control = nil
}

func serviceNode(path dbus.ObjectPath) *introspect.Node {
	return &introspect.Node{
		Name: string(path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: IfaceGattService},
			{Name: IfaceProperties},
		},
	}
}

func characteristicNode(path dbus.ObjectPath) *introspect.Node {
	return &introspect.Node{
		Name: string(path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: IfaceGattCharacteristic,
				Methods: []introspect.Method{
					{Name: "ReadValue"},
					{Name: "WriteValue"},
					{Name: "StartNotify"},
					{Name: "StopNotify"},
				},
			},
			{Name: IfaceProperties},
		},
	}
}
