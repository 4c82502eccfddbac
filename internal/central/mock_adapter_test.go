package central

import (
	"context"
	"fmt"
	"sync"
)

// mockConnection simulates a BLE connection.
type mockConnection struct {
	mu           sync.Mutex
	address      string
	disconnectCb func()
	disconnected bool
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *mockConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// simulateDrop fires the disconnect callback as the adapter would on a
// remote-initiated disconnect.
func (c *mockConnection) simulateDrop() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *mockConnection) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// mockDevice pairs a discoverable Device with the services it advertises.
type mockDevice struct {
	device   Device
	services []string
}

// mockAdapter simulates the BLE adapter with a fixed set of visible devices.
type mockAdapter struct {
	mu          sync.Mutex
	devices     []mockDevice
	connectErr  error
	connections map[string]*mockConnection
}

func newMockAdapter(devices ...mockDevice) *mockAdapter {
	return &mockAdapter{
		devices:     devices,
		connections: make(map[string]*mockConnection),
	}
}

func (a *mockAdapter) Enable() error { return nil }

func (a *mockAdapter) Scan(ctx context.Context, serviceUUID string, found func(Device)) error {
	a.mu.Lock()
	devices := a.devices
	a.mu.Unlock()
	for _, d := range devices {
		if serviceUUID != "" && !contains(d.services, serviceUUID) {
			continue
		}
		found(d.device)
		// Advertisers repeat; report each device twice.
		found(d.device)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (a *mockAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	for _, d := range a.devices {
		if d.device.Address == address {
			conn := &mockConnection{address: address}
			a.connections[address] = conn
			return conn, nil
		}
	}
	return nil, fmt.Errorf("mock: no device at %s", address)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
