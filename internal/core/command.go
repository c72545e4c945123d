package core

// commandKind enumerates requests processed by the hub goroutine.
type commandKind int

const (
	commandRegister commandKind = iota
	commandUnregister
	commandBind
	commandStats
)

// command is a request to the hub loop. Requests that need a reply
// carry a buffered channel the hub writes once handled.
type command struct {
	kind   commandKind
	client *Client
	roomID string
	result chan error
	stats  chan Stats
}

// Stats is a snapshot of the registry.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}
