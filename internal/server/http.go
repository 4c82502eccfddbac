// Package server exposes the peripheral engine over HTTP: a REST facade for
// lifecycle and data operations plus a WebSocket stream of live telemetry.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"supportframe/internal/central"
	"supportframe/internal/config"
	"supportframe/internal/peripheral"
	"supportframe/internal/telemetry"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// Engine is the subset of the peripheral engine the facade needs.
type Engine interface {
	Initialize(adapter string) peripheral.Result
	Start() peripheral.StartResult
	Stop() peripheral.StopResult
	Status() peripheral.EngineStatus
	CurrentFrame() telemetry.Frame
	History(limit int) []telemetry.HistoryEntry
	SetManualData(text string) peripheral.Result
	SetSimulationMode(mode string) peripheral.Result
}

// Scanner is the central-role discovery surface the facade needs.
type Scanner interface {
	Scan(ctx context.Context, filter central.Filter) ([]central.Device, error)
}

// Connector is the central-role connection surface the facade needs.
type Connector interface {
	Connect(ctx context.Context, address string) error
	Disconnect(address string) error
	Connected() []string
}

// Server is the HTTP/WebSocket facade.
type Server struct {
	engine       Engine
	scanner      Scanner
	connector    Connector
	pushInterval time.Duration
	httpServer   *http.Server
}

// New builds the facade. pushInterval paces the WebSocket stream.
func New(cfg config.HTTPConfig, engine Engine, scanner Scanner, connector Connector, pushInterval time.Duration) *Server {
	s := &Server{
		engine:       engine,
		scanner:      scanner,
		connector:    connector,
		pushInterval: pushInterval,
	}
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/peripheral/initialize", s.handleInitialize)
	mux.HandleFunc("POST /api/v1/peripheral/start", s.handleStart)
	mux.HandleFunc("POST /api/v1/peripheral/stop", s.handleStop)
	mux.HandleFunc("GET /api/v1/peripheral/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/peripheral/data/current", s.handleCurrentData)
	mux.HandleFunc("POST /api/v1/peripheral/data/set", s.handleSetData)
	mux.HandleFunc("POST /api/v1/peripheral/simulation/mode", s.handleSetMode)
	mux.HandleFunc("GET /api/v1/peripheral/data/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/peripheral/health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/ble/scan", s.handleScan)
	mux.HandleFunc("POST /api/v1/ble/connect", s.handleConnect)
	mux.HandleFunc("DELETE /api/v1/ble/disconnect/{address}", s.handleDisconnect)
	mux.HandleFunc("GET /api/v1/ble/devices", s.handleDevices)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	slog.Info("[HTTP] listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Adapter string `json:"adapter"`
	}
	// The body is optional; an empty adapter selects the configured one.
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	writeJSON(w, http.StatusOK, s.engine.Initialize(req.Adapter))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Start())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stop())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleCurrentData(w http.ResponseWriter, r *http.Request) {
	frame := s.engine.CurrentFrame()
	writeJSON(w, http.StatusOK, map[string]any{
		"data":      frame.String(),
		"timestamp": frame.Timestamp,
	})
}

func (s *Server) handleSetData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Data == "" {
		writeError(w, http.StatusBadRequest, "missing data field")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.SetManualData(req.Data))
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Mode == "" {
		writeError(w, http.StatusBadRequest, "missing mode field")
		return
	}
	result := s.engine.SetSimulationMode(req.Mode)
	if !result.Success {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxHistoryLimit {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("limit must be an integer in [1, %d]", maxHistoryLimit))
			return
		}
		limit = parsed
	}
	entries := s.engine.History(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.engine.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "BLE Peripheral",
		"status":      "healthy",
		"initialized": status.Initialized,
		"running":     status.Running,
		"timestamp":   time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("[HTTP] response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
