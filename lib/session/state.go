package session

import "fmt"

// State is the handshake state of a Manager.
type State int

const (
	StateIdle State = iota
	StateHandshakeInit
	StateHandshakeWait
	StateActive
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHandshakeInit:
		return "handshake_init"
	case StateHandshakeWait:
		return "handshake_wait"
	case StateActive:
		return "active"
	case StateLocked:
		return "locked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) pending() bool {
	return s == StateHandshakeInit || s == StateHandshakeWait
}
