package proto

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/vovakirdan/teamchat-server/internal/store"
)

const (
	InboundTypeSubscribe = "subscribe"

	OutboundTypeConnected  = "connected"
	OutboundTypeSubscribed = "subscribed"
	OutboundTypeMessageNew = "message:new"
	OutboundTypeError      = "error"
)

// TimeFormat is the wire format of message timestamps.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

var (
	// ErrMalformed means the frame is not valid JSON.
	ErrMalformed = errors.New("malformed frame")
	// ErrUnsupported means the frame is JSON but not a well-formed subscribe request.
	ErrUnsupported = errors.New("unsupported frame")
)

// Inbound is a frame sent by the client.
type Inbound struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ParseInbound decodes a client frame. Only subscribe frames with a
// non-empty roomId are accepted.
func ParseInbound(data []byte) (Inbound, error) {
	if !json.Valid(data) {
		return Inbound{}, ErrMalformed
	}

	var raw struct {
		Type   json.RawMessage `json:"type"`
		RoomID json.RawMessage `json:"roomId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		// Valid JSON that is not an object.
		return Inbound{}, ErrUnsupported
	}

	var in Inbound
	if json.Unmarshal(raw.Type, &in.Type) != nil || in.Type != InboundTypeSubscribe {
		return Inbound{}, ErrUnsupported
	}
	if json.Unmarshal(raw.RoomID, &in.RoomID) != nil || in.RoomID == "" {
		return Inbound{}, ErrUnsupported
	}
	return in, nil
}

// Message is the client representation of a chat message.
type Message struct {
	ID              string  `json:"id"`
	RoomID          string  `json:"roomId"`
	SenderID        string  `json:"senderId"`
	SenderName      string  `json:"senderName"`
	SenderAvatarURL *string `json:"senderAvatarUrl"`
	Type            string  `json:"type"`
	Content         string  `json:"content"`
	CreatedAt       string  `json:"createdAt"`
}

// MessageFromStore converts a stored message to its wire form.
func MessageFromStore(m *store.Message) Message {
	return Message{
		ID:              m.ID,
		RoomID:          m.RoomID,
		SenderID:        m.SenderID,
		SenderName:      m.SenderName,
		SenderAvatarURL: m.SenderAvatarURL,
		Type:            string(m.Type),
		Content:         m.Content,
		CreatedAt:       FormatTime(m.CreatedAt),
	}
}

// MessagesFromStore converts a slice, never returning nil.
func MessagesFromStore(ms []*store.Message) []Message {
	out := make([]Message, 0, len(ms))
	for _, m := range ms {
		out = append(out, MessageFromStore(m))
	}
	return out
}

// FormatTime renders t in UTC with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ConnectedFrame acknowledges an authenticated connection.
type ConnectedFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// SubscribedFrame confirms a room subscription.
type SubscribedFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// MessageNewFrame pushes a newly created message.
type MessageNewFrame struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// ErrorFrame reports a failed request. The connection stays open.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
