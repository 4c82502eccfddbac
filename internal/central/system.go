package central

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// SystemAdapter wraps tinygo-org/bluetooth over the host's default adapter.
// On Linux this talks to the same BlueZ daemon the peripheral side publishes
// to, through a separate connection.
type SystemAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*systemConnection // keyed by device address
}

// NewSystemAdapter creates a BLE adapter on the default host radio.
func NewSystemAdapter() *SystemAdapter {
	return &SystemAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*systemConnection),
	}
}

func (a *SystemAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// Adapter-level handler fires with connected=false when a peripheral
	// drops; route it to the tracked connection's callback.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		address := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[address]
		a.mu.Unlock()
		if ok && conn.disconnectCb != nil {
			conn.disconnectCb()
		}
	})

	return nil
}

func (a *SystemAdapter) Scan(ctx context.Context, serviceUUID string, found func(Device)) error {
	var uuid bluetooth.UUID
	filterService := serviceUUID != ""
	if filterService {
		parsed, err := bluetooth.ParseUUID(serviceUUID)
		if err != nil {
			return fmt.Errorf("central: parse service UUID: %w", err)
		}
		uuid = parsed
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if filterService && !result.HasServiceUUID(uuid) {
			return
		}
		found(Device{
			Name:    result.LocalName(),
			Address: result.Address.String(),
			RSSI:    int(result.RSSI),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("central: scan: %w", err)
	}
	return nil
}

func (a *SystemAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	// tinygo/bluetooth's Connect blocks with its own timeout; wrap it so the
	// caller's ctx is also honored.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("central: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("central: connect to %s: %w", address, result.err)
		}
		conn := &systemConnection{device: &result.device}
		a.mu.Lock()
		a.connections[address] = conn
		a.mu.Unlock()
		return conn, nil
	}
}

// Compile-time check that SystemAdapter implements Adapter.
var _ Adapter = (*SystemAdapter)(nil)

type systemConnection struct {
	device       *bluetooth.Device
	disconnectCb func()
}

func (c *systemConnection) Disconnect() error {
	return c.device.Disconnect()
}

func (c *systemConnection) OnDisconnect(callback func()) {
	c.disconnectCb = callback
}
