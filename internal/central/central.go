// Package central provides a thin central-role BLE layer for finding and
// connecting to peripherals, used by integration tooling to observe the
// emulated device from the other side of the link.
package central

import "context"

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan streams discovered peripherals to found until ctx is cancelled.
	// A non-empty serviceUUID restricts results to advertisers of that
	// service.
	Scan(ctx context.Context, serviceUUID string, found func(Device)) error
	// Connect establishes a connection to the device at the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
