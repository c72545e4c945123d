package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/teamchat-server/internal/auth"
	"github.com/vovakirdan/teamchat-server/internal/core"
	"github.com/vovakirdan/teamchat-server/internal/proto"
	"github.com/vovakirdan/teamchat-server/internal/ratelimit"
	"github.com/vovakirdan/teamchat-server/internal/utils"
)

const (
	closeReasonUnauthorized  = "Unauthorized"
	closeReasonMissingOrigin = "Missing origin"

	// Frames above maxInboundFrame are answered with an error frame.
	// Frames above maxWireFrame close the connection with 1009.
	maxInboundFrame = 4096
	maxWireFrame    = 1 << 20
)

// WSOptions tunes the websocket handler.
type WSOptions struct {
	// OriginPatterns restricts browser origins. Empty accepts any origin.
	OriginPatterns []string
	SendBuffer     int
	// FrameLimit caps inbound frames per connection.
	FrameLimit ratelimit.Config
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub      *core.Hub
	sessions auth.SessionResolver
	opts     WSOptions
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, sessions auth.SessionResolver, opts WSOptions, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, sessions: sessions, opts: opts, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.opts.OriginPatterns,
		InsecureSkipVerify: len(h.opts.OriginPatterns) == 0,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxWireFrame)

	creds := auth.CredentialsFromRequest(r)
	if creds.Origin == "" {
		conn.Close(websocket.StatusPolicyViolation, closeReasonMissingOrigin)
		return
	}

	identity, err := h.sessions.Resolve(ctx, creds)
	if err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws handshake without session")
		} else {
			h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws session resolution failed")
		}
		conn.Close(websocket.StatusPolicyViolation, closeReasonUnauthorized)
		return
	}

	client := core.NewClient(utils.NewID(), identity.ID, h.opts.SendBuffer)
	// The queue is empty, so the acknowledgement is always the first frame.
	client.TryDeliver(core.ConnectedEvent(identity.ID))
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	h.log.Debug().Str("client_id", client.ID).Str("user_id", client.UserID).Msg("ws connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "internal error"
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	h.log.Debug().Str("client_id", client.ID).Int("status", int(status)).Msg("ws disconnected")
	conn.Close(status, reason)
}

// readLoop handles inbound frames one at a time, in arrival order.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := ratelimit.NewMemoryLimiter(h.opts.FrameLimit)

	for {
		data, err := readInbound(ctx, conn)
		if errors.Is(err, errFrameTooLarge) {
			h.log.Debug().Str("client_id", client.ID).Msg("rejected oversized ws frame")
			if err := h.reply(ctx, client, core.ErrInvalidPayload); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		if res, _ := limiter.Allow(ctx, client.ID); !res.Allowed {
			if err := h.reply(ctx, client, core.ErrFrameRateExceeded); err != nil {
				return err
			}
			continue
		}

		inbound, err := proto.ParseInbound(data)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("rejected ws frame")
			if err := h.reply(ctx, client, inboundError(err)); err != nil {
				return err
			}
			continue
		}

		if err := h.hub.Subscribe(ctx, client, inbound.RoomID); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrHubClosed) {
				return err
			}
			if errors.Is(err, core.ErrSendQueueFull) {
				h.log.Warn().Str("client_id", client.ID).Str("room_id", inbound.RoomID).Msg("subscribe rejected: client queue full")
			} else if !errors.Is(err, core.ErrAccessDenied) {
				h.log.Error().Err(err).Str("client_id", client.ID).Str("room_id", inbound.RoomID).Msg("subscribe failed")
			}
			if err := h.reply(ctx, client, core.SubscribeError(err)); err != nil {
				return err
			}
		}
	}
}

var errFrameTooLarge = errors.New("frame exceeds inbound limit")

// readInbound reads one message. A message longer than maxInboundFrame is
// drained and reported as errFrameTooLarge so the connection stays usable.
func readInbound(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	_, r, err := conn.Reader(ctx)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, maxInboundFrame+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxInboundFrame {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, err
		}
		return nil, errFrameTooLarge
	}
	return data, nil
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			frame, ok := frameFromEvent(event)
			if !ok {
				h.log.Warn().Str("client_id", client.ID).Str("kind", event.Kind.String()).Msg("dropping unmappable event")
				continue
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reply queues an error frame for the connection that caused it.
func (h *WSHandler) reply(ctx context.Context, client *core.Client, cerr *core.CoreError) error {
	return client.Deliver(ctx, core.ErrorEvent(cerr))
}
