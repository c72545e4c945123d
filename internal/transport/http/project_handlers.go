package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/teamchat-server/internal/auth"
	"github.com/vovakirdan/teamchat-server/internal/proto"
	"github.com/vovakirdan/teamchat-server/internal/service/projects"
	"github.com/vovakirdan/teamchat-server/internal/store"
)

// ProjectHandlers provides HTTP handlers for project endpoints.
type ProjectHandlers struct {
	projects *projects.Service
	log      *zerolog.Logger
}

// NewProjectHandlers creates a new project handlers instance.
func NewProjectHandlers(svc *projects.Service, logger *zerolog.Logger) *ProjectHandlers {
	return &ProjectHandlers{
		projects: svc,
		log:      logger,
	}
}

// SessionUser is the resolved identity as shown to the client.
type SessionUser struct {
	ID    string  `json:"id"`
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Image *string `json:"image"`
}

// SidebarRoomResponse is a room entry in the sidebar.
type SidebarRoomResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MemberRole string `json:"memberRole"`
}

// SidebarProjectResponse is a project entry in the sidebar.
type SidebarProjectResponse struct {
	ID    string                `json:"id"`
	Name  string                `json:"name"`
	Slug  string                `json:"slug"`
	Rooms []SidebarRoomResponse `json:"rooms"`
}

// SidebarResponse is the body of the sidebar endpoint.
type SidebarResponse struct {
	CurrentUser SessionUser              `json:"currentUser"`
	Projects    []SidebarProjectResponse `json:"projects"`
}

// CreateWorkspaceRoomRequest represents the create workspace room request body.
type CreateWorkspaceRoomRequest struct {
	Name string `json:"name"`
}

// ProjectResponse represents a project in API responses.
type ProjectResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CreatedAt string `json:"createdAt"`
}

// WorkspaceRoomResponse is the body returned for a new workspace room.
type WorkspaceRoomResponse struct {
	Project ProjectResponse `json:"project"`
	Room    RoomResponse    `json:"room"`
}

func sessionUser(id *auth.Identity) SessionUser {
	return SessionUser{ID: id.ID, Name: id.Name, Email: id.Email, Image: id.Image}
}

// Sidebar lists the caller's projects and visible rooms.
// GET /api/projects/sidebar
func (h *ProjectHandlers) Sidebar(c *gin.Context) {
	identity, ok := currentIdentity(c, h.log)
	if !ok {
		return
	}

	list, err := h.projects.Sidebar(c.Request.Context(), identity.ID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", identity.ID).Msg("failed to load sidebar")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInternal})
		return
	}

	c.JSON(http.StatusOK, SidebarResponse{
		CurrentUser: sessionUser(identity),
		Projects:    sidebarProjects(list),
	})
}

func sidebarProjects(list []*store.SidebarProject) []SidebarProjectResponse {
	out := make([]SidebarProjectResponse, 0, len(list))
	for _, p := range list {
		rooms := make([]SidebarRoomResponse, 0, len(p.Rooms))
		for _, r := range p.Rooms {
			rooms = append(rooms, SidebarRoomResponse{ID: r.ID, Name: r.Name, MemberRole: string(r.MemberRole)})
		}
		out = append(out, SidebarProjectResponse{ID: p.ID, Name: p.Name, Slug: p.Slug, Rooms: rooms})
	}
	return out
}

// CreateWorkspaceRoom starts a new project with a single room.
// POST /api/projects/rooms
func (h *ProjectHandlers) CreateWorkspaceRoom(c *gin.Context) {
	identity, ok := currentIdentity(c, h.log)
	if !ok {
		return
	}

	var req CreateWorkspaceRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create workspace room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgInvalidBody, Details: err.Error()})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing required field: name"})
		return
	}

	ws, err := h.projects.CreateWorkspaceRoom(c.Request.Context(), identity.ID, req.Name)
	if err != nil {
		h.fail(c, err, "Unable to create workspace room")
		return
	}

	h.log.Info().Str("project_id", ws.Project.ID).Str("room_id", ws.Room.ID).Str("user_id", identity.ID).Msg("workspace room created")
	c.JSON(http.StatusCreated, WorkspaceRoomResponse{
		Project: ProjectResponse{
			ID:        ws.Project.ID,
			Name:      ws.Project.Name,
			Slug:      ws.Project.Slug,
			CreatedAt: proto.FormatTime(ws.Project.CreatedAt),
		},
		Room: roomResponse(ws.Room),
	})
}

// DeleteProject soft deletes a project with all its rooms.
// DELETE /api/projects/:projectId
func (h *ProjectHandlers) DeleteProject(c *gin.Context) {
	identity, ok := currentIdentity(c, h.log)
	if !ok {
		return
	}

	projectID := c.Param("projectId")
	if err := h.projects.Delete(c.Request.Context(), identity.ID, projectID); err != nil {
		h.fail(c, err, "Unable to delete project")
		return
	}

	h.log.Info().Str("project_id", projectID).Str("user_id", identity.ID).Msg("project deleted")
	c.Status(http.StatusNoContent)
}

// SetVisibility hides or shows a project in the caller's sidebar.
// PATCH /api/projects/:projectId/visibility
func (h *ProjectHandlers) SetVisibility(c *gin.Context) {
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

	if err := h.projects.SetVisibility(c.Request.Context(), identity.ID, c.Param("projectId"), *req.Visible); err != nil {
		h.fail(c, err, "Unable to update project visibility")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProjectHandlers) fail(c *gin.Context, err error, action string) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: action, Details: verr.Reason})
	case errors.Is(err, projects.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: action, Details: err.Error()})
	case errors.Is(err, projects.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Project not found"})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(strings.ToLower(action))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInternal})
	}
}
