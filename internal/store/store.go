package store

import (
	"context"
	"errors"
	"time"
)

// Common store errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("already exists")
)

// User represents an account as linked by the identity provider.
type User struct {
	ID          string
	DisplayName *string
	Username    *string
	Name        *string
	Email       *string
	AvatarURL   *string
	Image       *string
	CreatedAt   time.Time
}

// Label returns the name shown next to the user's messages.
func (u *User) Label() string {
	if u == nil {
		return unknownSender
	}
	return senderName(u.DisplayName, u.Username, u.Name)
}

// Avatar returns the preferred avatar URL, or nil.
func (u *User) Avatar() *string {
	if u == nil {
		return nil
	}
	return senderAvatar(u.AvatarURL, u.Image)
}

// MemberRole is the role a user holds in a project or room.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

// Project groups rooms.
type Project struct {
	ID          string
	Name        string
	Slug        string
	Description string
	CreatedByID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// ProjectMember represents project membership.
type ProjectMember struct {
	ProjectID string
	UserID    string
	Role      MemberRole
	HiddenAt  *time.Time
	JoinedAt  time.Time
}

// Room represents a chat room inside a project.
type Room struct {
	ID        string
	ProjectID string
	Name      string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// RoomMember represents room membership. HiddenAt only affects sidebar listing.
type RoomMember struct {
	RoomID   string
	UserID   string
	Role     MemberRole
	HiddenAt *time.Time
	JoinedAt time.Time
}

// SeedRoom describes a room created together with its project. ID is
// assigned by the store.
type SeedRoom struct {
	ID   string
	Name string
	Role MemberRole
}

// SidebarRoom is a room entry in a user's sidebar.
type SidebarRoom struct {
	ID         string
	Name       string
	MemberRole MemberRole
}

// SidebarProject is a project entry in a user's sidebar.
type SidebarProject struct {
	ID    string
	Name  string
	Slug  string
	Rooms []SidebarRoom
}

// UserStore handles user persistence.
type UserStore interface {
	// EnsureUser inserts the user if no row with the same ID exists.
	EnsureUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// UserDirectory creates users on behalf of API clients.
type UserDirectory interface {
	UserStore

	// CreateUser inserts a new user, assigning ID and CreatedAt when empty.
	CreateUser(ctx context.Context, user *User) error
}

// MembershipGate answers room authorization questions.
type MembershipGate interface {
	// IsMember reports whether the user holds a membership in a live room.
	// Unknown users and rooms yield false without an error.
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	MembershipGate

	// CreateRoom inserts the room and the creator's membership atomically.
	CreateRoom(ctx context.Context, room *Room, creatorID string, role MemberRole) error

	// GetRoomByID retrieves a room by ID, including soft-deleted rooms.
	GetRoomByID(ctx context.Context, id string) (*Room, error)

	// GetRoomForMember retrieves a live room the user is a member of.
	GetRoomForMember(ctx context.Context, roomID, userID string) (*Room, error)

	// AddRoomMember grants userID access to the room and adds them to its
	// project if needed. Existing memberships are left unchanged.
	AddRoomMember(ctx context.Context, roomID, userID string, role MemberRole) error

	// GetRoomMember retrieves a membership row.
	GetRoomMember(ctx context.Context, roomID, userID string) (*RoomMember, error)

	// SoftDeleteRoom marks the room deleted.
	SoftDeleteRoom(ctx context.Context, roomID string, at time.Time) error

	// SetRoomHidden sets or clears (nil) the hidden marker of a membership.
	SetRoomHidden(ctx context.Context, roomID, userID string, hiddenAt *time.Time) error
}

// ProjectStore handles project persistence.
type ProjectStore interface {
	// HasProjectMembership reports whether the user belongs to any project.
	HasProjectMembership(ctx context.Context, userID string) (bool, error)

	// CreateProjectWithRooms inserts a project owned by ownerID along with seed
	// rooms and fills in their IDs. A taken slug yields ErrConflict.
	CreateProjectWithRooms(ctx context.Context, project *Project, ownerID string, rooms []SeedRoom) error

	// GetProjectMember retrieves a membership in a live project.
	GetProjectMember(ctx context.Context, projectID, userID string) (*ProjectMember, error)

	// SetProjectHidden sets or clears (nil) the hidden marker of a membership
	// in a live project.
	SetProjectHidden(ctx context.Context, projectID, userID string, hiddenAt *time.Time) error

	// SoftDeleteProject marks the project deleted. Its rooms become unreachable.
	SoftDeleteProject(ctx context.Context, projectID string, at time.Time) error

	// ListSidebar lists the user's projects with their visible rooms.
	ListSidebar(ctx context.Context, userID string) ([]*SidebarProject, error)
}

// MessageStore handles message persistence. It performs no authorization.
type MessageStore interface {
	// ListMessages returns the first limit messages of a room, oldest first.
	// Limit is clamped with ClampLimit.
	ListMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)

	// CreateMessage validates and persists a message and returns it enriched
	// with the sender's display fields.
	CreateMessage(ctx context.Context, roomID, senderID, content string, msgType MessageType) (*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserDirectory
	RoomStore
	ProjectStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
