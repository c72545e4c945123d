package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/teamchat-server/internal/proto"
	"github.com/vovakirdan/teamchat-server/internal/service/chat"
	"github.com/vovakirdan/teamchat-server/internal/store"
)

// ChatHandlers provides HTTP handlers for room message endpoints.
type ChatHandlers struct {
	chat *chat.Service
	log  *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(svc *chat.Service, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		chat: svc,
		log:  logger,
	}
}

// CreateMessageRequest represents the send message request body.
type CreateMessageRequest struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// MessageListResponse wraps a page of room messages.
type MessageListResponse struct {
	Messages []proto.Message `json:"messages"`
}

// MessageResponse wraps a single message.
type MessageResponse struct {
	Message proto.Message `json:"message"`
}

// ListMessages handles fetching the message history of a room.
// GET /api/chat/rooms/:roomId/messages?limit=N
func (h *ChatHandlers) ListMessages(c *gin.Context) {
	identity, ok := currentIdentity(c, h.log)
	if !ok {
		return
	}

	roomID := c.Param("roomId")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgMissingRoomID})
		return
	}

	// Unparseable limits fall back to the default page size.
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.chat.ListMessages(c.Request.Context(), identity.ID, roomID, limit)
	if err != nil {
		if errors.Is(err, chat.ErrForbidden) {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "Unable to fetch room messages", Details: msgNotRoomMember})
			return
		}
		h.log.Error().Err(err).Str("room_id", roomID).Str("user_id", identity.ID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInternal})
		return
	}

	c.JSON(http.StatusOK, MessageListResponse{Messages: proto.MessagesFromStore(msgs)})
}

// CreateMessage handles sending a message to a room. The created message is
// also pushed to every live connection subscribed to the room.
// POST /api/chat/messages
func (h *ChatHandlers) CreateMessage(c *gin.Context) {
	identity, ok := currentIdentity(c, h.log)
	if !ok {
		return
	}

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgInvalidBody, Details: err.Error()})
		return
	}
	if req.RoomID == "" || strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing required fields: roomId, content"})
		return
	}

	// Unknown types are stored as TEXT.
	msgType, _ := store.ParseMessageType(req.Type)

	msg, err := h.chat.CreateMessage(c.Request.Context(), identity.ID, req.RoomID, req.Content, msgType)
	if err != nil {
		var verr *store.ValidationError
		switch {
		case errors.Is(err, chat.ErrForbidden):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "Unable to send message", Details: msgNotRoomMember})
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Unable to send message", Details: verr.Reason})
		default:
			h.log.Error().Err(err).Str("room_id", req.RoomID).Str("user_id", identity.ID).Msg("failed to create message")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInternal})
		}
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: proto.MessageFromStore(msg)})
}
