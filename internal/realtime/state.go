package realtime

// ConnectionState represents the lifecycle state of the channel socket.
type ConnectionState int

const (
	// StateIdle indicates no connect has been requested yet.
	StateIdle ConnectionState = iota

	// StateConnecting indicates a socket handshake is in progress.
	StateConnecting

	// StateOpen indicates the socket is open and sends go straight to the wire.
	StateOpen

	// StateClosing indicates the manager is tearing the socket down.
	StateClosing

	// StateClosed indicates no socket is live. Recovery may still be scheduled.
	StateClosed
)

// String returns the string representation of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Close codes with fixed meaning to the manager.
const (
	// CloseNormal is the clean closure code. The manager does not reconnect after it.
	CloseNormal = 1000
)

// authFailureCodes are close codes meaning the server rejected the credential.
// 401 and 403 are reported when the upgrade itself is refused.
var authFailureCodes = map[int]struct{}{
	4001: {},
	4003: {},
	4401: {},
	401:  {},
	403:  {},
}

// IsAuthFailure reports whether a close code means the credential was rejected.
func IsAuthFailure(code int) bool {
	_, ok := authFailureCodes[code]

	return ok
}
