package bluez

import (
	"errors"
	"fmt"
	"testing"
)

func TestAdvertisementDescriptorProperties(t *testing.T) {
	d := &AdvertisementDescriptor{
		Type:           "peripheral",
		LocalName:      "SupportFrame",
		IncludeTxPower: true,
	}
	d.AddServiceUUID(ServiceUUID)
	d.AddManufacturerData(0xFFFF, []byte{0x01, 0x02})
	d.AddServiceData(TelemetryUUID, []byte{0x03})

	props := d.properties()
	for _, key := range []string{"Type", "LocalName", "ServiceUUIDs", "ManufacturerData", "ServiceData", "IncludeTxPower"} {
		if _, ok := props[key]; !ok {
			t.Errorf("missing property %q", key)
		}
	}
	if got := props["LocalName"].Value().(string); got != "SupportFrame" {
		t.Errorf("LocalName = %q", got)
	}
	if got := props["ServiceUUIDs"].Value().([]string); len(got) != 1 || got[0] != ServiceUUID {
		t.Errorf("ServiceUUIDs = %v", got)
	}
}

func TestAdvertisementDescriptorOmitsEmpty(t *testing.T) {
	d := &AdvertisementDescriptor{Type: "peripheral"}
	props := d.properties()
	for _, key := range []string{"LocalName", "ServiceUUIDs", "ManufacturerData", "ServiceData", "IncludeTxPower"} {
		if _, ok := props[key]; ok {
			t.Errorf("unset property %q should be omitted", key)
		}
	}
}

func TestAdvertisementGetAllWrongInterface(t *testing.T) {
	adv := &advertisement{path: advertisementPath, descriptor: AdvertisementDescriptor{Type: "peripheral"}}
	if _, derr := adv.GetAll(IfaceLEAdvertisement); derr != nil {
		t.Fatalf("GetAll: %v", derr)
	}
	if _, derr := adv.GetAll("org.example.Wrong"); derr == nil {
		t.Fatal("expected error for wrong interface")
	}
}

func TestAdvertisementInitializeAdapterUnavailable(t *testing.T) {
	bus := newMockBus()
	bus.getPropErr = fmt.Errorf("no reply")
	m := NewAdvertisementManager(bus, "SupportFrame")

	err := m.Initialize(DefaultAdapter)
	if !errors.Is(err, ErrAdapterUnavailable) {
		t.Fatalf("err = %v, want ErrAdapterUnavailable", err)
	}
	if m.Status().AdapterBound {
		t.Error("manager should not be bound after failed initialize")
	}
}

func TestAdvertisementInitializeDaemonUnreachable(t *testing.T) {
	bus := newMockBus()
	bus.callErr = fmt.Errorf("name org.bluez not provided")
	m := NewAdvertisementManager(bus, "SupportFrame")

	err := m.Initialize(DefaultAdapter)
	if !errors.Is(err, ErrAdapterUnavailable) {
		t.Fatalf("err = %v, want ErrAdapterUnavailable", err)
	}
}

func TestAdvertisementStartConfirmed(t *testing.T) {
	bus := newMockBus()
	m := NewAdvertisementManager(bus, "SupportFrame")
	if err := m.Initialize(DefaultAdapter); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := m.StartAdvertising(); err != nil {
		t.Fatalf("StartAdvertising: %v", err)
	}
	if !bus.called(".RegisterAdvertisement") {
		t.Error("RegisterAdvertisement not called")
	}
	if _, ok := bus.exported(advertisementPath, IfaceLEAdvertisement); !ok {
		t.Error("advertisement object not exported")
	}
	status := m.Status()
	if !status.Advertising {
		t.Error("not advertising after confirmed registration")
	}
	if status.Registration != "confirmed" {
		t.Errorf("registration = %q, want confirmed", status.Registration)
	}
}

func TestAdvertisementStartRejected(t *testing.T) {
	bus := newMockBus()
	bus.asyncErr = fmt.Errorf("org.bluez.Error.NotPermitted")
	m := NewAdvertisementManager(bus, "SupportFrame")
	if err := m.Initialize(DefaultAdapter); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := m.StartAdvertising(); err != nil {
		t.Fatalf("StartAdvertising: %v", err)
	}
	status := m.Status()
	if status.Advertising {
		t.Error("advertising should be false after rejection")
	}
	if status.Registration != "rejected" {
		t.Errorf("registration = %q, want rejected", status.Registration)
	}
}

func TestAdvertisementStartRequestedBeforeVerdict(t *testing.T) {
	bus := newMockBus()
	bus.asyncManual = true
	m := NewAdvertisementManager(bus, "SupportFrame")
	if err := m.Initialize(DefaultAdapter); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := m.StartAdvertising(); err != nil {
		t.Fatalf("StartAdvertising: %v", err)
	}
	if got := m.Status().Registration; got != "requested" {
		t.Errorf("registration = %q, want requested", got)
	}

	bus.resolvePending(nil)
	if got := m.Status().Registration; got != "confirmed" {
		t.Errorf("registration = %q, want confirmed", got)
	}
}

func TestAdvertisementStartWhileActive(t *testing.T) {
	bus := newMockBus()
	m := NewAdvertisementManager(bus, "SupportFrame")
	if err := m.Initialize(DefaultAdapter); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.StartAdvertising(); err != nil {
		t.Fatalf("StartAdvertising: %v", err)
	}

	before := bus.exportCount()
	if err := m.StartAdvertising(); err != nil {
		t.Fatalf("second StartAdvertising: %v", err)
	}
	if bus.exportCount() != before {
		t.Error("second start must not export again")
	}
}

func TestAdvertisementStopIdempotent(t *testing.T) {
	bus := newMockBus()
	m := NewAdvertisementManager(bus, "SupportFrame")
	if err := m.Initialize(DefaultAdapter); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.StartAdvertising(); err != nil {
		t.Fatalf("StartAdvertising: %v", err)
	}

	if err := m.StopAdvertising(); err != nil {
		t.Fatalf("StopAdvertising: %v", err)
	}
	if !bus.called(".UnregisterAdvertisement") {
		t.Error("UnregisterAdvertisement not called")
	}
	if bus.exportCount() != 0 {
		t.Errorf("exports remaining after stop: %d", bus.exportCount())
	}
	if m.Status().Advertising {
		t.Error("still advertising after stop")
	}

	// Second stop is a no-op success.
	if err := m.StopAdvertising(); err != nil {
		t.Fatalf("second StopAdvertising: %v", err)
	}
}

func TestAdvertisementStopBeforeVerdict(t *testing.T) {
	bus := newMockBus()
	bus.asyncManual = true
	m := NewAdvertisementManager(bus, "SupportFrame")
	if err := m.Initialize(DefaultAdapter); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.StartAdvertising(); err != nil {
		t.Fatalf("StartAdvertising: %v", err)
	}
	if err := m.StopAdvertising(); err != nil {
		t.Fatalf("StopAdvertising: %v", err)
	}

	// The late verdict must not resurrect the torn-down state.
	bus.resolvePending(nil)
	status := m.Status()
	if status.Advertising {
		t.Error("late verdict must not flip advertising back on")
	}
	if status.Registration != "idle" {
		t.Errorf("registration = %q, want idle", status.Registration)
	}
}

func TestAdvertisementStartRequiresInitialize(t *testing.T) {
	m := NewAdvertisementManager(newMockBus(), "SupportFrame")
	if err := m.StartAdvertising(); err == nil {
		t.Fatal("expected error when starting without initialize")
	}
}
