package central

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultConnectTimeout bounds a connection attempt when the caller's context
// carries no deadline.
const DefaultConnectTimeout = 10 * time.Second

// Connector establishes and tracks connections to peripherals. One
// connection per address; a duplicate connect is an error.
type Connector struct {
	adapter Adapter

	mu          sync.Mutex
	connections map[string]Connection
}

// NewConnector creates a connector on the given adapter.
func NewConnector(adapter Adapter) *Connector {
	return &Connector{
		adapter:     adapter,
		connections: make(map[string]Connection),
	}
}

// Connect dials the device at address. Fails if a connection to that address
// already exists.
func (c *Connector) Connect(ctx context.Context, address string) error {
	c.mu.Lock()
	if _, ok := c.connections[address]; ok {
		c.mu.Unlock()
		return fmt.Errorf("central: already connected to %s", address)
	}
	c.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultConnectTimeout)
		defer cancel()
	}

	conn, err := c.adapter.Connect(ctx, address)
	if err != nil {
		return fmt.Errorf("central: connect to %s: %w", address, err)
	}

	conn.OnDisconnect(func() {
		slog.Warn("[CENTRAL] connection dropped", "address", address)
		c.forget(address)
	})

	c.mu.Lock()
	c.connections[address] = conn
	c.mu.Unlock()

	slog.Info("[CENTRAL] connected", "address", address)
	return nil
}

// Disconnect closes the connection to address. Unknown addresses are an
// error.
func (c *Connector) Disconnect(address string) error {
	c.mu.Lock()
	conn, ok := c.connections[address]
	delete(c.connections, address)
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("central: not connected to %s", address)
	}
	if err := conn.Disconnect(); err != nil {
		return fmt.Errorf("central: disconnect %s: %w", address, err)
	}
	slog.Info("[CENTRAL] disconnected", "address", address)
	return nil
}

// Connected returns the addresses with an active connection, sorted.
func (c *Connector) Connected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	addresses := make([]string, 0, len(c.connections))
	for address := range c.connections {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses
}

func (c *Connector) forget(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.connections, address)
}
