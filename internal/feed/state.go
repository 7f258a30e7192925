package feed

import "sync/atomic"

// State is the connection lifecycle of the feed client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateAwaitingChallenge
	StateAuthenticated
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateAwaitingChallenge:
		return "awaiting_challenge"
	case StateAuthenticated:
		return "authenticated"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Connected reports whether the socket is usable for traffic in this state.
func (s State) Connected() bool {
	switch s {
	case StateSubscribed, StateAwaitingChallenge, StateAuthenticated:
		return true
	default:
		return false
	}
}

// stateVar is an atomically readable State for cross-goroutine observation.
type stateVar struct {
	v int32
}

func (s *stateVar) Store(st State) {
	atomic.StoreInt32(&s.v, int32(st))
}

func (s *stateVar) Load() State {
	return State(atomic.LoadInt32(&s.v))
}
