// Package bluez implements the peripheral side of the BlueZ D-Bus contract:
// it publishes an LEAdvertisement1 object and a GATT application (service +
// characteristic tree) on the system bus and drives their asynchronous
// registration against the BlueZ advertising and GATT managers.
package bluez

import "github.com/godbus/dbus/v5"

// BlueZ bus and interface names.
const (
	BusName        = "org.bluez"
	RootPath       = dbus.ObjectPath("/org/bluez")
	DefaultAdapter = "/org/bluez/hci0"

	IfaceAdapter              = "org.bluez.Adapter1"
	IfaceLEAdvertisement      = "org.bluez.LEAdvertisement1"
	IfaceLEAdvertisingManager = "org.bluez.LEAdvertisingManager1"
	IfaceGattManager          = "org.bluez.GattManager1"
	IfaceGattService          = "org.bluez.GattService1"
	IfaceGattCharacteristic   = "org.bluez.GattCharacteristic1"

	IfaceProperties     = "org.freedesktop.DBus.Properties"
	IfaceObjectManager  = "org.freedesktop.DBus.ObjectManager"
	IfaceIntrospectable = "org.freedesktop.DBus.Introspectable"

	errInvalidArgs = "org.freedesktop.DBus.Error.InvalidArgs"
)

// SupportFrame GATT profile UUIDs.
const (
	ServiceUUID    = "12345678-1234-5678-9abc-123456789abc"
	TelemetryUUID  = "12345678-1234-5678-9abc-123456789abd"
	DeviceInfoUUID = "12345678-1234-5678-9abc-123456789abe"
	ControlUUID    = "12345678-1234-5678-9abc-123456789abf"
)

// InitialTelemetryValue is the telemetry characteristic's value before the
// first simulator update.
const InitialTelemetryValue = "L1:100 L2:100 L3:100 R1:100 R2:100 R3:100 Score:80"

// DeviceInfoValue is the static device-info characteristic content.
const DeviceInfoValue = "Model:Support Frame SF-001;Manufacturer:BLE Simulator Inc;Version:1.0.0"

// Published object paths.
const (
	advertisementPath = dbus.ObjectPath("/org/bluez/advertisement0")
	applicationPath   = dbus.ObjectPath("/")
	servicePath       = dbus.ObjectPath("/org/bluez/service0")
)
