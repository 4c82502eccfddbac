package bluez

import (
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// mockBus records exported objects, calls, and emitted signals, and lets a
// test decide the verdict of asynchronous registration calls.
type mockBus struct {
	mu         sync.Mutex
	exports    map[string]any
	calls      []string
	emits      []mockEmit
	properties map[string]any

	callErr     error
	getPropErr  error
	asyncErr    error
	asyncManual bool
	pendingDone []func(error)
}

type mockEmit struct {
	path   dbus.ObjectPath
	name   string
	values []any
}

func newMockBus() *mockBus {
	return &mockBus{
		exports: make(map[string]any),
		properties: map[string]any{
			string(DefaultAdapter) + "|" + IfaceAdapter + ".Address": "AA:BB:CC:DD:EE:FF",
		},
	}
}

func exportKey(path dbus.ObjectPath, iface string) string {
	return string(path) + "|" + iface
}

func (b *mockBus) Export(v any, path dbus.ObjectPath, iface string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exports[exportKey(path, iface)] = v
	return nil
}

func (b *mockBus) Unexport(path dbus.ObjectPath, iface string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.exports, exportKey(path, iface))
	return nil
}

func (b *mockBus) Emit(path dbus.ObjectPath, name string, values ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emits = append(b.emits, mockEmit{path: path, name: name, values: values})
	return nil
}

func (b *mockBus) Call(path dbus.ObjectPath, method string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, method)
	return b.callErr
}

func (b *mockBus) CallAsync(path dbus.ObjectPath, method string, done func(error), args ...any) {
	b.mu.Lock()
	b.calls = append(b.calls, method)
	if b.asyncManual {
		b.pendingDone = append(b.pendingDone, done)
		b.mu.Unlock()
		return
	}
	err := b.asyncErr
	b.mu.Unlock()
	done(err)
}

func (b *mockBus) GetProperty(path dbus.ObjectPath, prop string) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getPropErr != nil {
		return nil, b.getPropErr
	}
	if v, ok := b.properties[string(path)+"|"+prop]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no such property %s on %s", prop, path)
}

func (b *mockBus) Close() error { return nil }

// resolvePending completes every outstanding asynchronous call.
func (b *mockBus) resolvePending(err error) {
	b.mu.Lock()
	pending := b.pendingDone
	b.pendingDone = nil
	b.mu.Unlock()
	for _, done := range pending {
		done(err)
	}
}

func (b *mockBus) exported(path dbus.ObjectPath, iface string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.exports[exportKey(path, iface)]
	return v, ok
}

func (b *mockBus) exportCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.exports)
}

func (b *mockBus) called(method string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if strings.HasSuffix(c, method) {
			return true
		}
	}
	return false
}

func (b *mockBus) emitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.emits)
}
