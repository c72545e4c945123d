package core

import "github.com/vovakirdan/teamchat-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventConnected acknowledges an authenticated connection.
	EventConnected EventKind = iota
	// EventSubscribed confirms the connection is bound to a room.
	EventSubscribed
	// EventMessageNew carries a message created in the subscribed room.
	EventMessageNew
	// EventError reports a failed request without closing the connection.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventSubscribed:
		return "subscribed"
	case EventMessageNew:
		return "message:new"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
// Events are shared between recipients and must not be mutated after sending.
type Event struct {
	Kind    EventKind
	UserID  string
	RoomID  string
	Message *store.Message
	Error   *CoreError
}

// ConnectedEvent builds the handshake acknowledgement.
func ConnectedEvent(userID string) *Event {
	return &Event{Kind: EventConnected, UserID: userID}
}

// ErrorEvent wraps a core error for delivery.
func ErrorEvent(err *CoreError) *Event {
	return &Event{Kind: EventError, Error: err}
}
