package connection

// State represents the connection state.
type State uint8

const (
	// StateIdle indicates no transport and no pending connect.
	StateIdle State = iota

	// StateConnecting indicates a connect attempt is in progress.
	StateConnecting

	// StateConnected indicates an established transport.
	StateConnected

	// StateReconnecting indicates the reconnect timer is armed.
	StateReconnecting

	// StateDestroyed is terminal; all resources have been released.
	StateDestroyed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}
