package peripheral

import (
	"log/slog"
	"strings"
)

// dispatch handles a control characteristic command. The verb is matched
// case-insensitively; arguments keep their original case. Unrecognized
// commands are logged and dropped.
func (e *Engine) dispatch(command string) {
	trimmed := strings.TrimSpace(command)
	lower := strings.ToLower(trimmed)

	switch {
	case lower == "start":
		if !e.sim.Start() {
			slog.Warn("[ENGINE] control start ignored, simulator already running")
		}
	case lower == "stop":
		if !e.sim.Stop() {
			slog.Warn("[ENGINE] control stop ignored, simulator not running")
		}
	case strings.HasPrefix(lower, "mode:"):
		mode := strings.TrimSpace(trimmed[len("mode:"):])
		if !e.sim.SetMode(strings.ToLower(mode)) {
			slog.Warn("[ENGINE] control mode ignored", "mode", mode)
		}
	case strings.HasPrefix(lower, "data:"):
		e.sim.SetManualFrame(strings.TrimSpace(trimmed[len("data:"):]))
	default:
		slog.Warn("[ENGINE] unrecognized control command", "command", trimmed)
	}
}
