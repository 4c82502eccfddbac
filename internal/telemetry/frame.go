// Package telemetry generates synthetic grip-force sensor readings for the
// emulated peripheral. It covers the frame text codec, the per-mode
// simulation parameters, the bounded history log, and the periodic simulator.
package telemetry

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// frameKeys is the fixed serialization order of a frame.
var frameKeys = [7]string{"L1", "L2", "L3", "R1", "R2", "R3", "Score"}

// Frame is one grip-force reading: three left channels, three right
// channels, and a composite score in [0,100]. Immutable once produced.
type Frame struct {
	Left      [3]int
	Right     [3]int
	Score     int
	Timestamp time.Time
}

// String serializes the frame to the wire text format:
// "L1:<v> L2:<v> L3:<v> R1:<v> R2:<v> R3:<v> Score:<v>".
func (f Frame) String() string {
	return fmt.Sprintf("L1:%d L2:%d L3:%d R1:%d R2:%d R3:%d Score:%d",
		f.Left[0], f.Left[1], f.Left[2],
		f.Right[0], f.Right[1], f.Right[2],
		f.Score)
}

// FallbackFrame returns the frame adopted when parsing fails: all channels
// at 100 with score 80.
func FallbackFrame() Frame {
	return Frame{
		Left:      [3]int{100, 100, 100},
		Right:     [3]int{100, 100, 100},
		Score:     80,
		Timestamp: time.Now(),
	}
}

// ParseFrame parses the wire text format. It never fails: a missing key, a
// token without a colon, or a non-integer value yields the fallback frame,
// never a partial one.
func ParseFrame(s string) Frame {
	values := make(map[string]int, len(frameKeys))
	for _, part := range strings.Fields(strings.TrimSpace(s)) {
		key, raw, ok := strings.Cut(part, ":")
		if !ok {
			slog.Warn("[TELEMETRY] malformed frame token, using fallback", "input", s, "token", part)
			return FallbackFrame()
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			slog.Warn("[TELEMETRY] malformed frame token, using fallback", "input", s, "token", part)
			return FallbackFrame()
		}
		values[key] = v
	}

	for _, key := range frameKeys {
		if _, ok := values[key]; !ok {
			slog.Warn("[TELEMETRY] malformed frame text, using fallback", "input", s, "missing", key)
			return FallbackFrame()
		}
	}

	return Frame{
		Left:      [3]int{values["L1"], values["L2"], values["L3"]},
		Right:     [3]int{values["R1"], values["R2"], values["R3"]},
		Score:     values["Score"],
		Timestamp: time.Now(),
	}
}
