package domain

// ClientID uniquely identifies one transport connection. IDs are assigned by
// the transport on accept and are never reused within a process lifetime.
type ClientID string

// ClientState is the per-connection lifecycle state tracked by the registry.
// A client is broadcast-reachable only while Connected; during a file
// handshake it sits in AwaitingFileAck and is excluded from fan-out.
type ClientState int

const (
	ClientClosed ClientState = iota
	ClientConnected
	ClientAwaitingFileAck
)

var clientStateNames = [...]string{"closed", "connected", "awaitingFileAck"}

func (s ClientState) String() string {
	if int(s) < len(clientStateNames) {
		return clientStateNames[s]
	}
	return "unknown"
}
