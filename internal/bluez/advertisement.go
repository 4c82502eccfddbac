package bluez

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// AdvertisementDescriptor holds the advertisement properties published to
// BlueZ. It is built fresh for every registration and immutable afterwards.
type AdvertisementDescriptor struct {
	Type             string // "peripheral" or "broadcast"
	LocalName        string
	ServiceUUIDs     []string
	ManufacturerData map[uint16][]byte
	ServiceData      map[string][]byte
	IncludeTxPower   bool
}

// AddServiceUUID appends a service UUID if not already present.
func (d *AdvertisementDescriptor) AddServiceUUID(uuid string) {
	for _, u := range d.ServiceUUIDs {
		if u == uuid {
			return
		}
	}
	d.ServiceUUIDs = append(d.ServiceUUIDs, uuid)
}

// AddManufacturerData sets the payload for a vendor code.
func (d *AdvertisementDescriptor) AddManufacturerData(code uint16, data []byte) {
	if d.ManufacturerData == nil {
		d.ManufacturerData = make(map[uint16][]byte)
	}
	d.ManufacturerData[code] = data
}

// AddServiceData sets the payload for a service UUID.
func (d *AdvertisementDescriptor) AddServiceData(uuid string, data []byte) {
	if d.ServiceData == nil {
		d.ServiceData = make(map[string][]byte)
	}
	d.ServiceData[uuid] = data
}

// properties returns the LEAdvertisement1 property map, including only
// populated fields.
func (d *AdvertisementDescriptor) properties() map[string]dbus.Variant {
	props := map[string]dbus.Variant{
		"Type": dbus.MakeVariant(d.Type),
	}
	if d.LocalName != "" {
		props["LocalName"] = dbus.MakeVariant(d.LocalName)
	}
	if len(d.ServiceUUIDs) > 0 {
		props["ServiceUUIDs"] = dbus.MakeVariant(d.ServiceUUIDs)
	}
	if len(d.ManufacturerData) > 0 {
		data := make(map[uint16]dbus.Variant, len(d.ManufacturerData))
		for code, payload := range d.ManufacturerData {
			data[code] = dbus.MakeVariant(payload)
		}
		props["ManufacturerData"] = dbus.MakeVariant(data)
	}
	if len(d.ServiceData) > 0 {
		data := make(map[string]dbus.Variant, len(d.ServiceData))
		for uuid, payload := range d.ServiceData {
			data[uuid] = dbus.MakeVariant(payload)
		}
		props["ServiceData"] = dbus.MakeVariant(data)
	}
	if d.IncludeTxPower {
		props["IncludeTxPower"] = dbus.MakeVariant(true)
	}
	return props
}

// advertisement is the LEAdvertisement1 object exported on the bus.
type advertisement struct {
	path       dbus.ObjectPath
	descriptor AdvertisementDescriptor
}

// Release is called by BlueZ when it drops the advertisement.
func (a *advertisement) Release() *dbus.Error {
	slog.Info("[ADV] BlueZ released advertisement", "path", a.path)
	return nil
}

// GetAll serves org.freedesktop.DBus.Properties.GetAll for BlueZ's probe of
// the advertisement properties.
func (a *advertisement) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != IfaceLEAdvertisement {
		return nil, dbus.NewError(errInvalidArgs, []any{"invalid interface"})
	}
	return a.descriptor.properties(), nil
}

func advertisementNode(path dbus.ObjectPath) *introspect.Node {
	return &introspect.Node{
		Name: string(path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    IfaceLEAdvertisement,
				Methods: []introspect.Method{{Name: "Release"}},
			},
			{
				Name: IfaceProperties,
				Methods: []introspect.Method{{
					Name: "GetAll",
					Args: []introspect.Arg{
						{Name: "interface", Type: "s", Direction: "in"},
						{Name: "properties", Type: "a{sv}", Direction: "out"},
					},
				}},
			},
		},
	}
}

// AdvertisementStatus is a snapshot of the manager state.
type AdvertisementStatus struct {
	Advertising  bool   `json:"advertising"`
	AdapterBound bool   `json:"adapter_bound"`
	Registration string `json:"registration"`
}

// AdvertisementManager owns the advertisement object and drives its
// registration against the adapter's LEAdvertisingManager1.
type AdvertisementManager struct {
	bus       Bus
	localName string

	mu          sync.Mutex
	adapterPath dbus.ObjectPath
	bound       bool
	advertising bool
	regState    RegState
	adv         *advertisement
}

// NewAdvertisementManager creates a manager advertising the given local name.
func NewAdvertisementManager(bus Bus, localName string) *AdvertisementManager {
	return &AdvertisementManager{bus: bus, localName: localName}
}

// Initialize binds to the adapter's advertising manager and queries its
// capability limits. An unreachable daemon or adapter yields
// ErrAdapterUnavailable.
func (m *AdvertisementManager) Initialize(adapter string) error {
	if adapter == "" {
		adapter = DefaultAdapter
	}
	path := dbus.ObjectPath(adapter)

	// Check the daemon root before binding the adapter, so an absent daemon
	// and an absent adapter report distinctly.
	if err := m.bus.Call(RootPath, IfaceIntrospectable+".Introspect"); err != nil {
		return fmt.Errorf("%w: daemon unreachable: %v", ErrAdapterUnavailable, err)
	}
	if _, err := m.bus.GetProperty(path, IfaceAdapter+".Address"); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAdapterUnavailable, adapter, err)
	}

	// Capability probe is informational only.
	supported, serr := m.bus.GetProperty(path, IfaceLEAdvertisingManager+".SupportedInstances")
	active, aerr := m.bus.GetProperty(path, IfaceLEAdvertisingManager+".ActiveInstances")
	if serr != nil || aerr != nil {
		slog.Warn("[ADV] could not read advertising manager capabilities", "adapter", adapter)
	} else {
		supportedN, activeN := toInt(supported), toInt(active)
		slog.Info("[ADV] advertising manager capabilities",
			"supported_instances", supportedN, "active_instances", activeN)
		if activeN >= supportedN {
			slog.Warn("[ADV] advertising instances exhausted",
				"active", activeN, "supported", supportedN)
		}
	}

	m.mu.Lock()
	m.adapterPath = path
	m.bound = true
	m.mu.Unlock()

	slog.Info("[ADV] advertisement manager initialized", "adapter", adapter)
	return nil
}

// StartAdvertising publishes a fresh advertisement object and issues the
// asynchronous registration request. It returns once the request is issued;
// the daemon's verdict arrives later and only updates internal state.
// No-op if already advertising.
func (m *AdvertisementManager) StartAdvertising() error {
	m.mu.Lock()

	if !m.bound {
		m.mu.Unlock()
		return fmt.Errorf("bluez: advertisement manager not initialized")
	}
	if m.adv != nil {
		m.mu.Unlock()
		slog.Warn("[ADV] already advertising")
		return nil
	}

	descriptor := AdvertisementDescriptor{
		Type:      "peripheral",
		LocalName: m.localName,
	}
	descriptor.AddServiceUUID(ServiceUUID)

	adv := &advertisement{path: advertisementPath, descriptor: descriptor}
	if err := m.exportLocked(adv); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("bluez: export advertisement: %w", err)
	}
	m.adv = adv
	m.regState = RegRequested
	adapter := m.adapterPath
	m.mu.Unlock()

	// Issued outside the lock so a fast verdict cannot deadlock against it.
	m.bus.CallAsync(adapter, IfaceLEAdvertisingManager+".RegisterAdvertisement",
		m.onRegisterResult, advertisementPath, map[string]dbus.Variant{})

	slog.Info("[ADV] advertisement registration requested",
		"path", advertisementPath, "name", m.localName)
	return nil
}

// StopAdvertising unregisters and unpublishes the advertisement object.
// No-op (success) when nothing is published. The object is discarded; the
// next start builds a fresh one.
func (m *AdvertisementManager) StopAdvertising() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.adv == nil {
		slog.Warn("[ADV] not advertising")
		return nil
	}

	if err := m.bus.Call(m.adapterPath,
		IfaceLEAdvertisingManager+".UnregisterAdvertisement", advertisementPath); err != nil {
		slog.Warn("[ADV] unregister advertisement failed", "error", err)
	}
	m.unexportLocked()
	m.adv = nil
	m.advertising = false
	m.regState = RegIdle

	slog.Info("[ADV] advertising stopped")
	return nil
}

// Advertising reports whether the daemon has confirmed the registration.
func (m *AdvertisementManager) Advertising() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advertising
}

// Status returns a snapshot of the manager state.
func (m *AdvertisementManager) Status() AdvertisementStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return AdvertisementStatus{
		Advertising:  m.advertising,
		AdapterBound: m.bound,
		Registration: m.regState.String(),
	}
}

func (m *AdvertisementManager) onRegisterResult(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.adv == nil {
		// Stopped before the verdict arrived.
		return
	}
	if err != nil {
		m.regState = RegRejected
		m.advertising = false
		slog.Error("[ADV] advertisement registration rejected",
			"error", err, "properties", m.adv.descriptor.properties())
		return
	}
	m.regState = RegConfirmed
	m.advertising = true
	slog.Info("[ADV] advertisement registered, device is discoverable",
		"name", m.localName)
}

func (m *AdvertisementManager) exportLocked(adv *advertisement) error {
	if err := m.bus.Export(adv, adv.path, IfaceLEAdvertisement); err != nil {
		return err
	}
	if err := m.bus.Export(adv, adv.path, IfaceProperties); err != nil {
		return err
	}
	return m.bus.Export(introspect.NewIntrospectable(advertisementNode(adv.path)),
		adv.path, IfaceIntrospectable)
}

func (m *AdvertisementManager) unexportLocked() {
	for _, iface := range []string{IfaceLEAdvertisement, IfaceProperties, IfaceIntrospectable} {
		if err := m.bus.Unexport(advertisementPath, iface); err != nil {
			slog.Warn("[ADV] unexport failed", "iface", iface, "error", err)
		}
	}
}

// toInt normalizes the integer types D-Bus properties arrive as.
func toInt(v any) int {
	switch n := v.(type) {
	case byte:
		return int(n)
	case int16:
		return int(n)
	case uint16:
		return int(n)
	case int32:
		return int(n)
	case uint32:
		return int(n)
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
