// Package peripheral orchestrates the BLE peripheral: it owns the lifecycle
// of the advertisement manager, the GATT server, and the telemetry simulator,
// and routes telemetry and control traffic between them through a single
// event loop goroutine.
package peripheral

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"supportframe/internal/bluez"
	"supportframe/internal/config"
	"supportframe/internal/telemetry"
)

// State is the engine lifecycle state. Running implies Initialized.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	default:
		return "uninitialized"
	}
}

// Advertiser abstracts the advertisement manager for testing.
type Advertiser interface {
	Initialize(adapter string) error
	StartAdvertising() error
	StopAdvertising() error
	Status() bluez.AdvertisementStatus
}

// GattService abstracts the GATT server for testing.
type GattService interface {
	Initialize(adapter string) error
	Start() error
	Stop() error
	UpdateTelemetry(text string) bool
	SetControlCallback(fn func(string))
	SubscriberCount() int
	Status() bluez.GattStatus
}

// Simulator abstracts the telemetry simulator for testing.
type Simulator interface {
	Start() bool
	Stop() bool
	Running() bool
	SetCallback(fn func(string))
	SetMode(mode string) bool
	Mode() string
	SetManualFrame(text string)
	CurrentFrame() telemetry.Frame
	History(limit int) []telemetry.HistoryEntry
	Status() telemetry.Status
}

const msgConflict = "conflicting operation in progress"

// Engine is the peripheral orchestrator.
type Engine struct {
	deviceName string
	adapter    string

	connectBus    func() (bluez.Bus, error)
	newAdvertiser func(bus bluez.Bus, name string) Advertiser
	newGatt       func(bus bluez.Bus) GattService

	// lifecycle serializes Initialize/Start/Stop/Shutdown. TryLock turns a
	// concurrent lifecycle call into a fast failure instead of a queue.
	lifecycle sync.Mutex

	mu        sync.Mutex
	state     State
	bus       bluez.Bus
	adv       Advertiser
	gatt      GattService
	sim       Simulator
	loop      *eventLoop
	startTime time.Time

	sent atomic.Uint64
}

// NewEngine builds an engine from configuration. Components talk to the real
// system bus; tests swap the factory fields.
func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		deviceName: cfg.DeviceName,
		adapter:    cfg.Adapter,
		sim:        telemetry.NewSimulator(cfg.Telemetry.UpdateInterval, cfg.Telemetry.HistorySize),
		connectBus: bluez.ConnectSystemBus,
		newAdvertiser: func(bus bluez.Bus, name string) Advertiser {
			return bluez.NewAdvertisementManager(bus, name)
		},
		newGatt: func(bus bluez.Bus) GattService {
			return bluez.NewGattServer(bus)
		},
	}
}

// Initialize connects to the system bus and binds both BlueZ managers to the
// adapter. An empty adapter selects the configured one. Failure of either
// manager rolls back to Uninitialized.
func (e *Engine) Initialize(adapter string) Result {
	if !e.lifecycle.TryLock() {
		return Result{Success: false, Message: msgConflict}
	}
	defer e.lifecycle.Unlock()
	return e.initialize(adapter)
}

// initialize is the locked body shared by Initialize and Start's
// auto-initialization. Caller holds the lifecycle lock.
func (e *Engine) initialize(adapter string) Result {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	if state != StateUninitialized {
		return Result{Success: false, Message: "peripheral already initialized"}
	}
	if adapter == "" {
		adapter = e.adapter
	}

	bus, err := e.connectBus()
	if err != nil {
		slog.Error("[ENGINE] system bus connection failed", "error", err)
		return Result{Success: false, Message: "system bus connection failed: " + err.Error()}
	}

	adv := e.newAdvertiser(bus, e.deviceName)
	if err := adv.Initialize(adapter); err != nil {
		bus.Close()
		slog.Error("[ENGINE] advertisement manager initialization failed", "error", err)
		return Result{Success: false, Message: err.Error()}
	}
	gatt := e.newGatt(bus)
	if err := gatt.Initialize(adapter); err != nil {
		bus.Close()
		slog.Error("[ENGINE] gatt server initialization failed", "error", err)
		return Result{Success: false, Message: err.Error()}
	}

	e.sim.SetCallback(e.onTelemetry)
	gatt.SetControlCallback(e.dispatch)

	e.mu.Lock()
	e.bus = bus
	e.adv = adv
	e.gatt = gatt
	e.state = StateInitialized
	e.mu.Unlock()

	slog.Info("[ENGINE] peripheral initialized", "adapter", adapter, "device", e.deviceName)
	return Result{Success: true, Message: "peripheral initialized"}
}

// Start brings the peripheral up: event loop, GATT server, advertising,
// simulator, in that order. Any step failure unwinds the earlier steps and
// leaves the engine Initialized. Auto-initializes with the configured adapter
// when needed.
func (e *Engine) Start() StartResult {
	if !e.lifecycle.TryLock() {
		return StartResult{Result: Result{Success: false, Message: msgConflict}}
	}
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	if state == StateRunning {
		return StartResult{Result: Result{Success: false, Message: "peripheral already running"}}
	}
	if state == StateUninitialized {
		if r := e.initialize(""); !r.Success {
			return StartResult{Result: r}
		}
	}

	e.mu.Lock()
	adv, gatt := e.adv, e.gatt
	e.mu.Unlock()

	loop := newEventLoop()
	loop.start()
	e.mu.Lock()
	e.loop = loop
	e.mu.Unlock()

	fail := func(message string, rollback ...func()) StartResult {
		for _, step := range rollback {
			step()
		}
		loop.stop()
		e.mu.Lock()
		e.loop = nil
		e.mu.Unlock()
		slog.Error("[ENGINE] start failed, rolled back", "reason", message)
		return StartResult{Result: Result{Success: false, Message: message}}
	}

	if err := gatt.Start(); err != nil {
		return fail("gatt server start failed: " + err.Error())
	}
	if err := adv.StartAdvertising(); err != nil {
		return fail("advertising start failed: "+err.Error(), func() {
			if serr := gatt.Stop(); serr != nil {
				slog.Warn("[ENGINE] gatt stop during rollback failed", "error", serr)
			}
		})
	}
	if !e.sim.Start() {
		return fail("simulator already running",
			func() {
				if serr := adv.StopAdvertising(); serr != nil {
					slog.Warn("[ENGINE] advertising stop during rollback failed", "error", serr)
				}
			},
			func() {
				if serr := gatt.Stop(); serr != nil {
					slog.Warn("[ENGINE] gatt stop during rollback failed", "error", serr)
				}
			})
	}

	now := time.Now()
	e.sent.Store(0)
	e.mu.Lock()
	e.state = StateRunning
	e.startTime = now
	e.mu.Unlock()

	slog.Info("[ENGINE] peripheral running", "device", e.deviceName, "start_time", now)
	return StartResult{
		Result:     Result{Success: true, Message: "peripheral started"},
		StartTime:  now,
		DeviceName: e.deviceName,
	}
}

// Stop tears the peripheral down in reverse order. Each step is best-effort;
// failures are logged and the sequence continues. Ends Initialized.
func (e *Engine) Stop() StopResult {
	if !e.lifecycle.TryLock() {
		return StopResult{Result: Result{Success: false, Message: msgConflict}}
	}
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return StopResult{Result: Result{Success: false, Message: "peripheral not running"}}
	}
	adv, gatt, loop, startTime := e.adv, e.gatt, e.loop, e.startTime
	e.mu.Unlock()

	e.stopComponents(adv, gatt, loop)

	now := time.Now()
	e.mu.Lock()
	e.state = StateInitialized
	e.loop = nil
	e.mu.Unlock()

	sent := e.sent.Load()
	duration := now.Sub(startTime).Seconds()
	slog.Info("[ENGINE] peripheral stopped", "duration_seconds", duration, "sent_count", sent)
	return StopResult{
		Result:          Result{Success: true, Message: "peripheral stopped"},
		StopTime:        now,
		DurationSeconds: duration,
		SentCount:       sent,
	}
}

func (e *Engine) stopComponents(adv Advertiser, gatt GattService, loop *eventLoop) {
	if !e.sim.Stop() {
		slog.Warn("[ENGINE] simulator was not running")
	}
	if adv != nil {
		if err := adv.StopAdvertising(); err != nil {
			slog.Warn("[ENGINE] advertising stop failed", "error", err)
		}
	}
	if gatt != nil {
		if err := gatt.Stop(); err != nil {
			slog.Warn("[ENGINE] gatt server stop failed", "error", err)
		}
	}
	if loop != nil {
		loop.stop()
	}
}

// Shutdown force-stops whatever is running and closes the bus connection.
// Used on process exit; blocks until in-flight lifecycle calls finish.
func (e *Engine) Shutdown() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	state := e.state
	adv, gatt, loop, bus := e.adv, e.gatt, e.loop, e.bus
	e.mu.Unlock()

	if state == StateRunning {
		e.stopComponents(adv, gatt, loop)
	}
	if bus != nil {
		if err := bus.Close(); err != nil {
			slog.Warn("[ENGINE] bus close failed", "error", err)
		}
	}

	e.mu.Lock()
	e.state = StateUninitialized
	e.bus = nil
	e.adv = nil
	e.gatt = nil
	e.loop = nil
	e.mu.Unlock()

	slog.Info("[ENGINE] peripheral shut down")
}

// Status returns a composite snapshot of the engine and its components.
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	state := e.state
	adv, gatt := e.adv, e.gatt
	startTime := e.startTime
	e.mu.Unlock()

	status := EngineStatus{
		Initialized: state != StateUninitialized,
		Running:     state == StateRunning,
		DeviceName:  e.deviceName,
		SentCount:   e.sent.Load(),
		Simulator:   e.sim.Status(),
	}
	if adv != nil {
		status.Advertisement = adv.Status()
	}
	if gatt != nil {
		status.Gatt = gatt.Status()
		status.Subscribers = gatt.SubscriberCount()
	}
	if state == StateRunning {
		status.StartTime = startTime
		status.UptimeSeconds = time.Since(startTime).Seconds()
	}
	return status
}

// CurrentFrame returns the simulator's latest frame.
func (e *Engine) CurrentFrame() telemetry.Frame {
	return e.sim.CurrentFrame()
}

// History returns up to limit recent telemetry entries, most recent last.
func (e *Engine) History(limit int) []telemetry.HistoryEntry {
	return e.sim.History(limit)
}

// SetManualData parses text as a telemetry frame and adopts it as the
// current value. Malformed text falls back to safe defaults.
func (e *Engine) SetManualData(text string) Result {
	e.sim.SetManualFrame(text)
	return Result{Success: true, Message: "data updated"}
}

// SetSimulationMode switches the simulator profile.
func (e *Engine) SetSimulationMode(mode string) Result {
	if !e.sim.SetMode(mode) {
		return Result{Success: false, Message: "unknown simulation mode: " + mode}
	}
	return Result{Success: true, Message: "simulation mode set to " + mode}
}

// onTelemetry is the simulator callback. It defers the GATT update to the
// event loop so the simulator goroutine never touches the bus directly.
func (e *Engine) onTelemetry(text string) {
	e.mu.Lock()
	loop, gatt := e.loop, e.gatt
	e.mu.Unlock()
	if loop == nil || gatt == nil {
		return
	}
	loop.submit(func() {
		if gatt.UpdateTelemetry(text) {
			e.sent.Add(1)
		}
	})
}
