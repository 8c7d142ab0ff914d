package sender

// State is the connection state of a Sender.
type State int

const (
	// StateIdle means no connection and nothing to send.
	StateIdle State = iota
	// StateConnecting means a dial to the collector is in progress.
	StateConnecting
	// StateConnected means a connection is open and the queue is empty.
	StateConnected
	// StateSending means the queue head is being submitted.
	StateSending
	// StateDisconnected means the last connect or send failed. The next tick
	// dials again.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSending:
		return "sending"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
