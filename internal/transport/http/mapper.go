package http

import (
	"errors"

	"github.com/vovakirdan/teamchat-server/internal/core"
	"github.com/vovakirdan/teamchat-server/internal/proto"
)

// frameFromEvent maps a core event to the frame written to the socket.
func frameFromEvent(ev *core.Event) (any, bool) {
	switch ev.Kind {
	case core.EventConnected:
		return proto.ConnectedFrame{Type: proto.OutboundTypeConnected, UserID: ev.UserID}, true
	case core.EventSubscribed:
		return proto.SubscribedFrame{Type: proto.OutboundTypeSubscribed, RoomID: ev.RoomID}, true
	case core.EventMessageNew:
		if ev.Message == nil {
			return nil, false
		}
		return proto.MessageNewFrame{Type: proto.OutboundTypeMessageNew, Message: proto.MessageFromStore(ev.Message)}, true
	case core.EventError:
		if ev.Error == nil {
			return nil, false
		}
		return proto.ErrorFrame{Type: proto.OutboundTypeError, Message: ev.Error.Message}, true
	default:
		return nil, false
	}
}

// inboundError maps a frame parse failure to the reply sent to the client.
func inboundError(err error) *core.CoreError {
	if errors.Is(err, proto.ErrMalformed) {
		return core.ErrInvalidPayload
	}
	return core.ErrUnsupportedEvent
}
