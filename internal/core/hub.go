package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/teamchat-server/internal/store"
)

const (
	commandBuffer   = 64
	broadcastBuffer = 256
)

// Hub is the realtime gateway. A single goroutine owns the registry and
// handles connection lifecycle, room binding and fan-out in arrival order.
type Hub struct {
	gate      store.MembershipGate
	log       zerolog.Logger
	registry  *Registry
	commands  chan command
	broadcast chan *store.Message
	done      chan struct{}
}

// NewHub creates a hub that checks subscriptions against gate.
// A nil logger disables hub logging.
func NewHub(gate store.MembershipGate, logger *zerolog.Logger) *Hub {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "hub").Logger()
	}
	return &Hub{
		gate:      gate,
		log:       l,
		registry:  NewRegistry(),
		commands:  make(chan command, commandBuffer),
		broadcast: make(chan *store.Message, broadcastBuffer),
		done:      make(chan struct{}),
	}
}

// Run processes hub commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.log.Debug().Msg("hub started")

	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Int("connections", h.registry.Len()).Msg("hub stopped")
			return
		case cmd := <-h.commands:
			h.handleCommand(cmd)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// RegisterClient adds a connection with no subscription.
func (h *Hub) RegisterClient(c *Client) {
	h.send(command{kind: commandRegister, client: c})
}

// UnregisterClient removes a connection and its subscription. Safe to call more than once.
func (h *Hub) UnregisterClient(c *Client) {
	h.send(command{kind: commandUnregister, client: c})
}

// Subscribe checks membership and binds c to roomID, replacing any previous room.
// On success the subscribed event is queued to c before Subscribe returns, so
// it precedes any message broadcast to the new room. If c's queue is full the
// previous binding is kept and ErrSendQueueFull is returned.
func (h *Hub) Subscribe(ctx context.Context, c *Client, roomID string) error {
	ok, err := h.gate.IsMember(ctx, c.UserID, roomID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return ErrAccessDenied
	}

	cmd := command{kind: commandBind, client: c, roomID: roomID, result: make(chan error, 1)}
	select {
	case h.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}

	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
}

// BroadcastMessage queues msg for delivery to every connection subscribed to its room.
// It does not wait for delivery; connections whose queue is full miss the message.
func (h *Hub) BroadcastMessage(msg *store.Message) {
	if msg == nil {
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Stats returns a registry snapshot taken on the hub goroutine.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	cmd := command{kind: commandStats, stats: make(chan Stats, 1)}
	select {
	case h.commands <- cmd:
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-h.done:
		return Stats{}, ErrHubClosed
	}

	select {
	case s := <-cmd.stats:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-h.done:
		return Stats{}, ErrHubClosed
	}
}

func (h *Hub) send(cmd command) {
	select {
	case h.commands <- cmd:
	case <-h.done:
	}
}

func (h *Hub) handleCommand(cmd command) {
	switch cmd.kind {
	case commandRegister:
		h.registry.Add(cmd.client)
		h.log.Debug().Str("client", cmd.client.ID).Str("user", cmd.client.UserID).Msg("client registered")
	case commandUnregister:
		if h.registry.Remove(cmd.client) {
			h.log.Debug().Str("client", cmd.client.ID).Str("user", cmd.client.UserID).Msg("client unregistered")
		}
	case commandBind:
		cmd.result <- h.bind(cmd.client, cmd.roomID)
	case commandStats:
		cmd.stats <- Stats{Connections: h.registry.Len(), Rooms: h.registry.Rooms()}
	default:
		h.log.Warn().Int("kind", int(cmd.kind)).Msg("unknown hub command")
	}
}

func (h *Hub) bind(c *Client, roomID string) error {
	// The connection may have closed while membership was being checked.
	if !h.registry.Has(c) {
		return nil
	}
	ev := &Event{Kind: EventSubscribed, UserID: c.UserID, RoomID: roomID}
	if !c.TryDeliver(ev) {
		h.log.Warn().Str("client", c.ID).Str("room", roomID).Msg("subscribe rejected: send queue full")
		return ErrSendQueueFull
	}
	h.registry.Bind(c, roomID)
	h.log.Debug().Str("client", c.ID).Str("room", roomID).Msg("client subscribed")
	return nil
}

func (h *Hub) fanOut(msg *store.Message) {
	ev := &Event{Kind: EventMessageNew, RoomID: msg.RoomID, Message: msg}
	delivered, dropped := 0, 0
	h.registry.ForEachSubscriber(msg.RoomID, func(c *Client) {
		if c.TryDeliver(ev) {
			delivered++
			return
		}
		dropped++
		h.log.Debug().Str("client", c.ID).Str("message", msg.ID).Msg("broadcast dropped: send queue full")
	})
	h.log.Debug().
		Str("room", msg.RoomID).
		Str("message", msg.ID).
		Int("delivered", delivered).
		Int("dropped", dropped).
		Msg("message broadcast")
}
