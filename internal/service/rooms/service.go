package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/teamchat-server/internal/store"
)

// Common errors for room operations.
var (
	ErrForbidden    = errors.New("not allowed")
	ErrNotFound     = errors.New("room not found")
	ErrUserNotFound = errors.New("user not found")
)

const maxRoomName = 120

// Service provides room management business logic.
type Service struct {
	store store.Store
}

// New creates a new room service.
func New(st store.Store) *Service {
	return &Service{
		store: st,
	}
}

// Create adds a room to a project. The caller must belong to the project and
// becomes the room owner if they own the project.
func (s *Service) Create(ctx context.Context, userID, projectID, name string) (*store.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &store.ValidationError{Field: "name", Reason: "room name is required"}
	}
	if len([]rune(name)) > maxRoomName {
		return nil, &store.ValidationError{Field: "name", Reason: "room name is too long"}
	}

	pm, err := s.store.GetProjectMember(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("get project member: %w", err)
	}

	role := store.RoleMember
	if pm.Role == store.RoleOwner {
		role = store.RoleOwner
	}

	room := &store.Room{ProjectID: projectID, Name: name}
	if err := s.store.CreateRoom(ctx, room, userID, role); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

// Get returns a live room the caller is a member of. Opening a room makes it
// and its project visible again in the caller's sidebar.
func (s *Service) Get(ctx context.Context, userID, roomID string) (*store.Room, error) {
	room, err := s.store.GetRoomForMember(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}

	if err := s.store.SetProjectHidden(ctx, room.ProjectID, userID, nil); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("unhide project: %w", err)
	}
	if err := s.store.SetRoomHidden(ctx, room.ID, userID, nil); err != nil {
		return nil, fmt.Errorf("unhide room: %w", err)
	}
	return room, nil
}

// Delete soft deletes a room. Only room owners and project owners may delete.
func (s *Service) Delete(ctx context.Context, userID, roomID string) error {
	member, err := s.store.GetRoomMember(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("get room member: %w", err)
	}

	room, err := s.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get room: %w", err)
	}
	if room.DeletedAt != nil {
		return ErrNotFound
	}

	if !s.canManage(ctx, member, room) {
		return ErrForbidden
	}

	if err := s.store.SoftDeleteRoom(ctx, roomID, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// SetVisibility hides or shows a room in the caller's sidebar. Access is unaffected.
func (s *Service) SetVisibility(ctx context.Context, userID, roomID string, visible bool) error {
	var hiddenAt *time.Time
	if !visible {
		now := time.Now().UTC()
		hiddenAt = &now
	}

	if err := s.store.SetRoomHidden(ctx, roomID, userID, hiddenAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("set room visibility: %w", err)
	}
	return nil
}

// AddMember grants memberID access to the room. The caller must own the room or its project.
func (s *Service) AddMember(ctx context.Context, userID, roomID, memberID string) error {
	if strings.TrimSpace(memberID) == "" {
		return &store.ValidationError{Field: "userId", Reason: "user id is required"}
	}

	member, err := s.store.GetRoomMember(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("get room member: %w", err)
	}

	room, err := s.store.GetRoomForMember(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get room: %w", err)
	}

	if !s.canManage(ctx, member, room) {
		return ErrForbidden
	}

	if _, err := s.store.GetUserByID(ctx, memberID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}

	if err := s.store.AddRoomMember(ctx, roomID, memberID, store.RoleMember); err != nil {
		return fmt.Errorf("add room member: %w", err)
	}
	return nil
}

func (s *Service) canManage(ctx context.Context, member *store.RoomMember, room *store.Room) bool {
	if member.Role == store.RoleOwner {
		return true
	}
	pm, err := s.store.GetProjectMember(ctx, room.ProjectID, member.UserID)
	return err == nil && pm.Role == store.RoleOwner
}
