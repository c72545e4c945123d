package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/teamchat-server/internal/proto"
	"github.com/vovakirdan/teamchat-server/internal/store"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	users store.UserDirectory
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(users store.UserDirectory, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		users: users,
		log:   logger,
	}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	AvatarURL   *string `json:"avatarUrl"`
	CreatedAt   string  `json:"createdAt"`
}

// CreateUserRequest represents the create user request body.
type CreateUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatarUrl"`
}

func userResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		DisplayName: u.Label(),
		Username:    u.Username,
		Email:       u.Email,
		AvatarURL:   u.Avatar(),
		CreatedAt:   proto.FormatTime(u.CreatedAt),
	}
}

// Me returns the stored profile of the caller.
// GET /api/users/me
func (h *UserHandlers) Me(c *gin.Context) {
	identity, ok := currentIdentity(c, h.log)
	if !ok {
		return
	}
	h.respondUser(c, identity.ID)
}

// GetUser returns a stored profile by id.
// GET /api/users/:id
func (h *UserHandlers) GetUser(c *gin.Context) {
	if _, ok := currentIdentity(c, h.log); !ok {
		return
	}
	h.respondUser(c, c.Param("id"))
}

// CreateUser registers a user profile. Blank fields are stored as absent.
// POST /api/users
func (h *UserHandlers) CreateUser(c *gin.Context) {
	if _, ok := currentIdentity(c, h.log); !ok {
		return
	}

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create user request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgInvalidBody, Details: err.Error()})
		return
	}

	displayName := optional(req.DisplayName)
	user := &store.User{
		Username:    optional(req.Username),
		DisplayName: displayName,
		Name:        displayName,
		Email:       optional(req.Email),
		AvatarURL:   optional(req.AvatarURL),
	}
	if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Unable to create user", Details: err.Error()})
			return
		}
		h.log.Error().Err(err).Msg("failed to create user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInternal})
		return
	}

	h.log.Info().Str("user_id", user.ID).Msg("user created")
	c.JSON(http.StatusCreated, gin.H{"user": userResponse(user)})
}

func (h *UserHandlers) respondUser(c *gin.Context, userID string) {
	user, err := h.users.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "User not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInternal})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userResponse(user)})
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
