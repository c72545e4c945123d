package projects

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/vovakirdan/teamchat-server/internal/store"
	"github.com/vovakirdan/teamchat-server/internal/utils"
)

// Common errors for project operations.
var (
	ErrForbidden = errors.New("not allowed")
	ErrNotFound  = errors.New("project not found")
)

// Default workspace created for users without any project.
const (
	defaultProjectName        = "Getting Started"
	defaultProjectDescription = "Default project workspace"
	defaultSlugPrefix         = "starter-"

	maxNameLength = 120
	maxSlugBase   = 48
	slugSuffixLen = 8
)

var defaultRooms = []store.SeedRoom{
	{Name: "General", Role: store.RoleOwner},
	{Name: "Dev Sync", Role: store.RoleMember},
}

// Workspace is a freshly created project together with its first room.
type Workspace struct {
	Project *store.Project
	Room    *store.Room
}

// Service manages projects and the sidebar.
type Service struct {
	store store.ProjectStore
}

// New creates a new project service.
func New(st store.ProjectStore) *Service {
	return &Service{store: st}
}

// Sidebar returns the user's projects with their visible rooms, creating a
// starter workspace on first use.
func (s *Service) Sidebar(ctx context.Context, userID string) ([]*store.SidebarProject, error) {
	if err := s.ensureDefaultWorkspace(ctx, userID); err != nil {
		return nil, err
	}

	projects, err := s.store.ListSidebar(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sidebar: %w", err)
	}
	return projects, nil
}

// CreateWorkspaceRoom starts a new project owned by the caller with a single
// room, both named name.
func (s *Service) CreateWorkspaceRoom(ctx context.Context, userID, name string) (*Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &store.ValidationError{Field: "name", Reason: "room name is required"}
	}
	if len([]rune(name)) > maxNameLength {
		return nil, &store.ValidationError{Field: "name", Reason: "room name is too long"}
	}

	project := &store.Project{
		Name: name,
		Slug: slugify(name) + "-" + utils.NewID()[:slugSuffixLen],
	}
	seeds := []store.SeedRoom{{Name: name, Role: store.RoleOwner}}
	if err := s.store.CreateProjectWithRooms(ctx, project, userID, seeds); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Workspace{
		Project: project,
		Room: &store.Room{
			ID:        seeds[0].ID,
			ProjectID: project.ID,
			Name:      name,
			CreatedAt: project.CreatedAt,
		},
	}, nil
}

// Delete soft deletes a project and with it every room inside. Only project
// owners may delete.
func (s *Service) Delete(ctx context.Context, userID, projectID string) error {
	member, err := s.member(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if member.Role != store.RoleOwner {
		return ErrForbidden
	}

	if err := s.store.SoftDeleteProject(ctx, projectID, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// SetVisibility hides or shows a project in the caller's sidebar. Room access is unaffected.
func (s *Service) SetVisibility(ctx context.Context, userID, projectID string, visible bool) error {
	var hiddenAt *time.Time
	if !visible {
		now := time.Now().UTC()
		hiddenAt = &now
	}

	if err := s.store.SetProjectHidden(ctx, projectID, userID, hiddenAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("set project visibility: %w", err)
	}
	return nil
}

func (s *Service) member(ctx context.Context, projectID, userID string) (*store.ProjectMember, error) {
	pm, err := s.store.GetProjectMember(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project member: %w", err)
	}
	return pm, nil
}

func (s *Service) ensureDefaultWorkspace(ctx context.Context, userID string) error {
	has, err := s.store.HasProjectMembership(ctx, userID)
	if err != nil {
		return fmt.Errorf("check project membership: %w", err)
	}
	if has {
		return nil
	}

	project := &store.Project{
		Name:        defaultProjectName,
		Slug:        defaultSlugPrefix + userID,
		Description: defaultProjectDescription,
	}
	err = s.store.CreateProjectWithRooms(ctx, project, userID, slices.Clone(defaultRooms))
	if err != nil && !errors.Is(err, store.ErrConflict) {
		// A conflict means a concurrent request already created the starter project.
		return fmt.Errorf("create default workspace: %w", err)
	}
	return nil
}

// slugify lowercases name and joins its letters and digits with dashes.
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
		if b.Len() >= maxSlugBase {
			break
		}
	}
	if b.Len() == 0 {
		return "workspace"
	}
	return b.String()
}
