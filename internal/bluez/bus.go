package bluez

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// ErrAdapterUnavailable reports that the BlueZ daemon or the requested
// adapter object could not be reached.
var ErrAdapterUnavailable = errors.New("bluez: adapter unavailable")

// Bus is the subset of the system bus the peripheral objects need. All
// outgoing calls target the org.bluez service.
type Bus interface {
	// Export publishes v's exported methods at path under iface.
	Export(v any, path dbus.ObjectPath, iface string) error
	// Unexport removes a previously exported interface from path.
	Unexport(path dbus.ObjectPath, iface string) error
	// Emit sends a signal from path. name is the full interface.member.
	Emit(path dbus.ObjectPath, name string, values ...any) error
	// Call invokes a method on an org.bluez object and waits for the reply.
	Call(path dbus.ObjectPath, method string, args ...any) error
	// CallAsync invokes a method on an org.bluez object; done receives the
	// call outcome later, on an unspecified goroutine.
	CallAsync(path dbus.ObjectPath, method string, done func(error), args ...any)
	// GetProperty reads a property ("iface.Name") from an org.bluez object.
	GetProperty(path dbus.ObjectPath, prop string) (any, error)
	// Close tears the connection down.
	Close() error
}

type systemBus struct {
	conn *dbus.Conn
}

// ConnectSystemBus opens a private connection to the system bus.
func ConnectSystemBus() (Bus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w", err)
	}
	return &systemBus{conn: conn}, nil
}

func (b *systemBus) Export(v any, path dbus.ObjectPath, iface string) error {
	return b.conn.Export(v, path, iface)
}

func (b *systemBus) Unexport(path dbus.ObjectPath, iface string) error {
	return b.conn.Export(nil, path, iface)
}

func (b *systemBus) Emit(path dbus.ObjectPath, name string, values ...any) error {
	return b.conn.Emit(path, name, values...)
}

func (b *systemBus) Call(path dbus.ObjectPath, method string, args ...any) error {
	return b.conn.Object(BusName, path).Call(method, 0, args...).Err
}

func (b *systemBus) CallAsync(path dbus.ObjectPath, method string, done func(error), args ...any) {
	ch := make(chan *dbus.Call, 1)
	b.conn.Object(BusName, path).Go(method, 0, ch, args...)
	go func() {
		call := <-ch
		done(call.Err)
	}()
}

func (b *systemBus) GetProperty(path dbus.ObjectPath, prop string) (any, error) {
	variant, err := b.conn.Object(BusName, path).GetProperty(prop)
	if err != nil {
		return nil, err
	}
	return variant.Value(), nil
}

func (b *systemBus) Close() error {
	return b.conn.Close()
}
