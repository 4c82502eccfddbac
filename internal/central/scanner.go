package central

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultScanDuration bounds a scan when the filter does not set one.
const DefaultScanDuration = 5 * time.Second

// Filter narrows scan results. Zero values match everything.
type Filter struct {
	Name        string        // exact local name match
	ServiceUUID string        // advertised service
	Duration    time.Duration // scan window, DefaultScanDuration if zero
}

// Scanner discovers peripherals through an Adapter.
type Scanner struct {
	adapter Adapter
}

// NewScanner creates a scanner on the given adapter.
func NewScanner(adapter Adapter) *Scanner {
	return &Scanner{adapter: adapter}
}

// Scan collects devices matching the filter for the filter's duration,
// deduplicated by address. Returns early if ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, filter Filter) ([]Device, error) {
	duration := filter.Duration
	if duration <= 0 {
		duration = DefaultScanDuration
	}
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	err := s.adapter.Scan(ctx, filter.ServiceUUID, func(d Device) {
		if filter.Name != "" && d.Name != filter.Name {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if seen[d.Address] {
			return
		}
		seen[d.Address] = true
		devices = append(devices, d)
		slog.Debug("[CENTRAL] discovered device",
			"name", d.Name, "address", d.Address, "rssi", d.RSSI)
	})
	// The window closing is the normal way a scan ends.
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("central: scan: %w", err)
	}
	slog.Info("[CENTRAL] scan finished", "found", len(devices))
	return devices, nil
}

// FindByName scans until a device with the exact name appears or the window
// closes.
func (s *Scanner) FindByName(ctx context.Context, name string, duration time.Duration) (Device, error) {
	devices, err := s.Scan(ctx, Filter{Name: name, Duration: duration})
	if err != nil {
		return Device{}, err
	}
	if len(devices) == 0 {
		return Device{}, fmt.Errorf("central: device %q not found", name)
	}
	return devices[0], nil
}
