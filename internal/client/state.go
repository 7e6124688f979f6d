package client

// State is a position in the client's connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateGivenUp means reconnection was declined or every attempt failed.
	StateGivenUp
	// StateClosed means the user quit, or the server turned the client away.
	StateClosed
)

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
	case StateGivenUp:
		return "given up"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
