package core

import "context"

// DefaultSendBuffer is the number of events queued per client before broadcasts are dropped.
const DefaultSendBuffer = 32

// Client is a live realtime connection as seen by the core layer.
// UserID is fixed at handshake; the room binding is owned by the Hub.
type Client struct {
	ID     string
	UserID string
	Events chan *Event
}

// NewClient constructs a client with an initialized event queue.
func NewClient(id, userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		ID:     id,
		UserID: userID,
		Events: make(chan *Event, buffer),
	}
}

// Deliver queues an event, waiting for room in the queue until ctx is done.
// Used for direct replies, which must not be lost.
func (c *Client) Deliver(ctx context.Context, ev *Event) error {
	select {
	case c.Events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryDeliver queues an event without waiting. It reports false when the queue is full.
func (c *Client) TryDeliver(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
