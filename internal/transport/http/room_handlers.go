package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/teamchat-server/internal/proto"
	"github.com/vovakirdan/teamchat-server/internal/service/rooms"
	"github.com/vovakirdan/teamchat-server/internal/store"
)

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	rooms *rooms.Service
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(svc *rooms.Service, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		rooms: svc,
		log:   logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
}

// VisibilityRequest represents the room visibility request body.
type VisibilityRequest struct {
	Visible *bool `json:"visible"`
}

// AddMemberRequest represents the add room member request body.
type AddMemberRequest struct {
	UserID string `json:"userId"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
	CreatedAt string `json:"createdAt"`
}

// RoomEnvelope wraps a room.
type RoomEnvelope struct {
	Room RoomResponse `json:"room"`
}

func roomResponse(r *store.Room) RoomResponse {
	return RoomResponse{
		ID:        r.ID,
		Name:      r.Name,
		ProjectID: r.ProjectID,
		CreatedAt: proto.FormatTime(r.CreatedAt),
	}
}

// CreateRoom handles room creation inside a project.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	identity, ok := currentIdentity(c, h.log)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgInvalidBody, Details: err.Error()})
		return
	}
	if req.ProjectID == "" || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing required fields: projectId, name"})
		return
	}

	room, err := h.rooms.Create(c.Request.Context(), identity.ID, req.ProjectID, req.Name)
	if err != nil {
		h.fail(c, err, "Unable to create room")
		return
	}

	h.log.Info().Str("room_id", room.ID).Str("project_id", room.ProjectID).Str("user_id", identity.ID).Msg("room created")
	c.JSON(http.StatusCreated, RoomEnvelope{Room: roomResponse(room)})
}

// GetRoom returns a room the caller belongs to.
// GET /api/rooms/:roomId
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	identity, ok := currentIdentity(c, h.log)
	if !ok {
		return
	}

	room, err := h.rooms.Get(c.Request.Context(), identity.ID, c.Param("roomId"))
	if err != nil {
		h.fail(c, err, "Unable to fetch room")
		return
	}

	c.JSON(http.StatusOK, RoomEnvelope{Room: roomResponse(room)})
}

// DeleteRoom soft deletes a room.
// DELETE /api/rooms/:roomId
func (h *RoomHandlers) DeleteRoom(c *gin.Context) {
	identity, ok := currentIdentity(c, h.log)
	if !ok {
		return
	}

	roomID := c.Param("roomId")
	if err := h.rooms.Delete(c.Request.Context(), identity.ID, roomID); err != nil {
		h.fail(c, err, "Unable to delete room")
		return
	}

	h.log.Info().Str("room_id", roomID).Str("user_id", identity.ID).Msg("room deleted")
	c.Status(http.StatusNoContent)
}

// SetVisibility hides or shows a room in the caller's sidebar.
// PATCH /api/rooms/:roomId/visibility
func (h *RoomHandlers) SetVisibility(c *gin.Context) {
	identity, ok := currentIdentity(c, h.log)
	if !ok {
		return
	}

	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid visibility request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgInvalidBody, Details: err.Error()})
		return
	}
	if req.Visible == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing required field: visible"})
		return
	}

	if err := h.rooms.SetVisibility(c.Request.Context(), identity.ID, c.Param("roomId"), *req.Visible); err != nil {
		h.fail(c, err, "Unable to update room visibility")
		return
	}
	c.Status(http.StatusNoContent)
}

// AddMember grants another user access to the room.
// POST /api/rooms/:roomId/members
func (h *RoomHandlers) AddMember(c *gin.Context) {
	identity, ok := currentIdentity(c, h.log)
	if !ok {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid add member request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgInvalidBody, Details: err.Error()})
		return
	}

	roomID := c.Param("roomId")
	if err := h.rooms.AddMember(c.Request.Context(), identity.ID, roomID, req.UserID); err != nil {
		h.fail(c, err, "Unable to add room member")
		return
	}

	h.log.Info().Str("room_id", roomID).Str("member_id", req.UserID).Str("user_id", identity.ID).Msg("room member added")
	c.Status(http.StatusNoContent)
}

func (h *RoomHandlers) fail(c *gin.Context, err error, action string) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: action, Details: verr.Reason})
	case errors.Is(err, rooms.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: action, Details: err.Error()})
	case errors.Is(err, rooms.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Room not found"})
	case errors.Is(err, rooms.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "User not found"})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(strings.ToLower(action))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInternal})
	}
}
