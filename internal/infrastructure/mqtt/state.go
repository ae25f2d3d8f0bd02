package mqtt

import "sync/atomic"

// State represents the manager's connection state.
type State uint32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// stateHolder stores the current State for lock-free reads.
// Writes happen under the manager's connMu.
type stateHolder struct {
	state atomic.Uint32
}

func (h *stateHolder) get() State {
	return State(h.state.Load())
}

func (h *stateHolder) set(s State) {
	h.state.Store(uint32(s))
}
