package peerlink

// State is the negotiation state of one peer link.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateFailed       State = "FAILED"
)

// Event drives state transitions.
type Event string

const (
	EventStart           Event = "start"
	EventDataChannelOpen Event = "datachannel_open"
	EventError           Event = "error"
	EventDisconnect      Event = "disconnect"
)

// Transition returns the next state for an event. Unlisted combinations are
// no-ops and return the current state unchanged.
func Transition(current State, event Event) State {
	switch current {
	case StateDisconnected:
		if event == EventStart {
			return StateConnecting
		}
	case StateConnecting:
		switch event {
		case EventDataChannelOpen:
			return StateConnected
		case EventError:
			return StateFailed
		}
	case StateConnected:
		switch event {
		case EventDisconnect:
			return StateDisconnected
		case EventError:
			return StateFailed
		}
	case StateFailed:
		if event == EventDisconnect {
			return StateDisconnected
		}
	}
	return current
}
