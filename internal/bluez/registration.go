package bluez

// RegState tracks the two-phase lifecycle of an asynchronous BlueZ
// registration: the request is issued now, the daemon's verdict arrives
// later via callback.
type RegState int

const (
	RegIdle RegState = iota
	RegRequested
	RegConfirmed
	RegRejected
)

func (s RegState) String() string {
	switch s {
	case RegIdle:
		return "idle"
	case RegRequested:
		return "requested"
	case RegConfirmed:
		return "confirmed"
	case RegRejected:
		return "rejected"
	default:
		return "unknown"
	}
}
