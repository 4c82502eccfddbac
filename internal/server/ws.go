package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsUpdate is one frame of the live stream.
type wsUpdate struct {
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Running   bool      `json:"running"`
	Mode      string    `json:"mode"`
	SentCount uint64    `json:"sent_count"`
}

// handleWebSocket streams the current frame and engine state on the push
// interval until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[HTTP] websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	slog.Info("[HTTP] websocket client connected", "remote", r.RemoteAddr)

	// Reader only notices the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			slog.Info("[HTTP] websocket client disconnected", "remote", r.RemoteAddr)
			return
		case <-ticker.C:
			frame := s.engine.CurrentFrame()
			status := s.engine.Status()
			update := wsUpdate{
				Data:      frame.String(),
				Timestamp: frame.Timestamp,
				Running:   status.Running,
				Mode:      status.Simulator.Mode,
				SentCount: status.SentCount,
			}
			if err := conn.WriteJSON(update); err != nil {
				slog.Info("[HTTP] websocket client disconnected", "remote", r.RemoteAddr)
				return
			}
		}
	}
}
