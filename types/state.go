package types

// State is the lifecycle state of the realtime connection.
type State string

const (
	StateNoCredential State = "no_credential"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// Live reports whether a socket exists in this state.
func (s State) Live() bool {
	return s != StateNoCredential
}
