package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"supportframe/internal/central"
	"supportframe/internal/peripheral"
)

// deviceInfo is the wire shape of a discovered peripheral.
type deviceInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	RSSI    int    `json:"rssi"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Duration      float64 `json:"duration"`
		FilterName    string  `json:"filter_name"`
		FilterService string  `json:"filter_service"`
	}
	// The body is optional; zero values scan everything for the default window.
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	filter := central.Filter{
		Name:        req.FilterName,
		ServiceUUID: req.FilterService,
		Duration:    time.Duration(req.Duration * float64(time.Second)),
	}
	devices, err := s.scanner.Scan(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	infos := make([]deviceInfo, len(devices))
	for i, d := range devices {
		infos[i] = deviceInfo{Name: d.Name, Address: d.Address, RSSI: d.RSSI}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "completed",
		"devices":   infos,
		"count":     len(infos),
		"scan_time": time.Now(),
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceAddress string  `json:"device_address"`
		Timeout       float64 `json:"timeout"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceAddress == "" {
		writeError(w, http.StatusBadRequest, "missing device_address field")
		return
	}

	ctx := r.Context()
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Timeout*float64(time.Second)))
		defer cancel()
	}

	if err := s.connector.Connect(ctx, req.DeviceAddress); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "connected",
		"device_address":  req.DeviceAddress,
		"connected":       true,
		"connection_time": time.Now(),
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if err := s.connector.Disconnect(address); err != nil {
		writeJSON(w, http.StatusOK, peripheral.Result{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, peripheral.Result{Success: true, Message: "disconnected from " + address})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	addresses := s.connector.Connected()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": addresses,
		"count":   len(addresses),
	})
}
