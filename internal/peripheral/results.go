package peripheral

import (
	"time"

	"supportframe/internal/bluez"
	"supportframe/internal/telemetry"
)

// Result is the outcome of an engine operation. Operational failures are
// reported here, not as errors; errors are reserved for infrastructure
// breakage.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StartResult is the outcome of Start.
type StartResult struct {
	Result
	StartTime  time.Time `json:"start_time"`
	DeviceName string    `json:"device_name"`
}

// StopResult is the outcome of Stop.
type StopResult struct {
	Result
	StopTime        time.Time `json:"stop_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	SentCount       uint64    `json:"sent_count"`
}

// EngineStatus is a composite snapshot of the engine and its components.
type EngineStatus struct {
	Initialized   bool                      `json:"initialized"`
	Running       bool                      `json:"running"`
	DeviceName    string                    `json:"device_name"`
	Subscribers   int                       `json:"subscribers"`
	SentCount     uint64                    `json:"sent_count"`
	StartTime     time.Time                 `json:"start_time"`
	UptimeSeconds float64                   `json:"uptime_seconds"`
	Advertisement bluez.AdvertisementStatus `json:"advertisement"`
	Gatt          bluez.GattStatus          `json:"gatt"`
	Simulator     telemetry.Status          `json:"simulator"`
}
