package telemetry

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

const (
	// DefaultInterval is the tick period of the generation loop.
	DefaultInterval = time.Second
	// joinTimeout bounds how long Stop waits for the loop to exit.
	joinTimeout = 2 * time.Second
	// trendFlipProbability is the per-tick chance the trend direction flips.
	trendFlipProbability = 0.1
	// channelMax is the upper clamp for a channel reading.
	channelMax = 999
)

// Status is a snapshot of the simulator state.
type Status struct {
	Running        bool          `json:"running"`
	Mode           string        `json:"mode"`
	CurrentData    string        `json:"current_data"`
	UpdateInterval time.Duration `json:"update_interval"`
	LastUpdate     time.Time     `json:"last_update"`
	HistoryCount   int           `json:"history_count"`
	HistoryMax     int           `json:"history_max"`
}

// Simulator produces synthetic grip frames on a fixed interval from a
// dedicated goroutine. Every produced frame, generated or manual, is
// appended to history and forwarded to the data callback.
type Simulator struct {
	interval time.Duration
	history  *History

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	callback  func(string)
	current   Frame
	params    Params
	trendSign int
	rng       *rand.Rand
}

// NewSimulator creates a simulator with the given tick interval and history
// capacity. Non-positive values fall back to defaults.
func NewSimulator(interval time.Duration, historySize int) *Simulator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	params, _ := ParamsForMode(ModeNormal)
	return &Simulator{
		interval:  interval,
		history:   NewHistory(historySize),
		current:   FallbackFrame(),
		params:    params,
		trendSign: 1,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetCallback registers the function invoked with each produced frame's
// serialized text. Pass nil to clear.
func (s *Simulator) SetCallback(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = fn
}

// Start begins the periodic generation loop. No-op if already running.
func (s *Simulator) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		slog.Warn("[SIM] simulator already running")
		return true
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.loop(s.stopCh, s.doneCh)
	slog.Info("[SIM] simulator started", "interval", s.interval)
	return true
}

// Stop signals the loop to exit and joins it with a bounded timeout. A loop
// that fails to exit in time is logged as leaked; Stop still completes.
func (s *Simulator) Stop() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		slog.Warn("[SIM] simulator not running")
		return true
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		slog.Info("[SIM] simulator stopped")
	case <-time.After(joinTimeout):
		slog.Error("[SIM] generation loop did not stop within timeout", "timeout", joinTimeout)
	}
	return true
}

// Running reports whether the generation loop is active.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetMode swaps the whole parameter set atomically. Unknown mode names are
// logged and ignored.
func (s *Simulator) SetMode(mode string) bool {
	params, ok := ParamsForMode(mode)
	if !ok {
		slog.Warn("[SIM] unknown simulation mode", "mode", mode)
		return false
	}
	s.mu.Lock()
	s.params = params
	s.mu.Unlock()
	slog.Info("[SIM] simulation mode set", "mode", mode)
	return true
}

// Mode returns the active mode name.
func (s *Simulator) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.Mode
}

// SetManualFrame parses and immediately adopts a caller-supplied frame,
// invoking the data callback exactly as the periodic loop would. Malformed
// text resolves to the fallback frame.
func (s *Simulator) SetManualFrame(text string) {
	frame := ParseFrame(text)
	s.adopt(frame)
	slog.Debug("[SIM] manual frame set", "frame", frame.String())
}

// CurrentFrame returns the most recently produced frame, non-blocking.
func (s *Simulator) CurrentFrame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// History returns up to limit recorded entries, most recent last.
func (s *Simulator) History(limit int) []HistoryEntry {
	return s.history.Recent(limit)
}

// Status returns a snapshot of the simulator state.
func (s *Simulator) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:        s.running,
		Mode:           s.params.Mode,
		CurrentData:    s.current.String(),
		UpdateInterval: s.interval,
		LastUpdate:     s.current.Timestamp,
		HistoryCount:   s.history.Len(),
		HistoryMax:     s.history.Capacity(),
	}
}

// adopt stores a frame, records it in history, and forwards it to the
// callback. The callback runs outside the simulator lock.
func (s *Simulator) adopt(frame Frame) {
	s.mu.Lock()
	s.current = frame
	cb := s.callback
	s.mu.Unlock()

	text := frame.String()
	s.history.Append(text)
	if cb != nil {
		cb(text)
	}
}

func (s *Simulator) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	slog.Debug("[SIM] generation loop started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			slog.Debug("[SIM] generation loop exiting")
			return
		case <-ticker.C:
			s.adopt(s.generate())
		}
	}
}

// generate draws one frame from the active parameter set. The trend sign is
// shared across all six channels within a tick; its magnitude is drawn per
// channel.
func (s *Simulator) generate() Frame {
	s.mu.Lock()
	params := s.params
	sign := s.trendSign
	if s.rng.Float64() < trendFlipProbability {
		s.trendSign = -s.trendSign
	}
	rng := s.rng
	var frame Frame
	sum := 0
	for i := 0; i < 3; i++ {
		frame.Left[i] = s.channelValue(rng, params.LeftBase[i], params.Variation, sign)
		frame.Right[i] = s.channelValue(rng, params.RightBase[i], params.Variation, sign)
		sum += frame.Left[i] + frame.Right[i]
	}
	s.mu.Unlock()

	avg := float64(sum) / 6.0
	score := int(avg/channelMax*100 + 0.5)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	frame.Score = score
	frame.Timestamp = time.Now()
	return frame
}

// channelValue is clamp(base + uniform(-variation,variation) + sign*uniform(0,10), 0, 999).
func (s *Simulator) channelValue(rng *rand.Rand, base, variation, sign int) int {
	v := base + rng.Intn(2*variation+1) - variation + sign*rng.Intn(11)
	if v < 0 {
		v = 0
	}
	if v > channelMax {
		v = channelMax
	}
	return v
}
