package projects

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/teamchat-server/internal/store"
	"github.com/vovakirdan/teamchat-server/internal/store/sqlite"
	"github.com/vovakirdan/teamchat-server/internal/store/storetest"
)

func newStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		return sqlite.ApplySchema(context.Background(), db)
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSidebarCreatesDefaultWorkspaceOnce(t *testing.T) {
	st := newStore(t)
	svc := New(st)
	ctx := context.Background()

	for range 2 {
		projects, err := svc.Sidebar(ctx, "u1")
		if err != nil {
			t.Fatalf("sidebar: %v", err)
		}
		if len(projects) != 1 {
			t.Fatalf("expected a single default project, got %d", len(projects))
		}
		p := projects[0]
		if p.Name != "Getting Started" || p.Slug != "starter-u1" {
			t.Fatalf("unexpected project: %+v", p)
		}
		if len(p.Rooms) != 2 || p.Rooms[0].Name != "General" || p.Rooms[1].Name != "Dev Sync" {
			t.Fatalf("unexpected rooms: %+v", p.Rooms)
		}
		if p.Rooms[0].MemberRole != store.RoleOwner || p.Rooms[1].MemberRole != store.RoleMember {
			t.Fatalf("unexpected roles: %+v", p.Rooms)
		}
	}

	ok, err := st.IsMember(ctx, "u1", mustSidebar(t, svc, "u1")[0].Rooms[0].ID)
	if err != nil || !ok {
		t.Fatalf("default room must be accessible, got %v, %v", ok, err)
	}
}

func TestSidebarOmitsHiddenRooms(t *testing.T) {
	st := newStore(t)
	svc := New(st)
	ctx := context.Background()

	rooms := mustSidebar(t, svc, "u2")[0].Rooms
	now := time.Now()
	if err := st.SetRoomHidden(ctx, rooms[0].ID, "u2", &now); err != nil {
		t.Fatalf("hide: %v", err)
	}

	after := mustSidebar(t, svc, "u2")[0].Rooms
	if len(after) != 1 || after[0].ID != rooms[1].ID {
		t.Fatalf("expected only the visible room, got %+v", after)
	}
}

// staleStore answers the membership check as if no project existed yet, the
// way a request that lost a race sees it.
type staleStore struct {
	store.Store
}

func (staleStore) HasProjectMembership(context.Context, string) (bool, error) {
	return false, nil
}

func TestSidebarToleratesConcurrentBootstrap(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	if _, err := New(st).Sidebar(ctx, "u3"); err != nil {
		t.Fatalf("first sidebar: %v", err)
	}

	projects, err := New(staleStore{st}).Sidebar(ctx, "u3")
	if err != nil {
		t.Fatalf("second bootstrap must not fail: %v", err)
	}
	if len(projects) != 1 || projects[0].Slug != "starter-u3" {
		t.Fatalf("expected the single starter project, got %+v", projects)
	}
}

func TestCreateWorkspaceRoom(t *testing.T) {
	st := newStore(t)
	svc := New(st)
	ctx := context.Background()

	ws, err := svc.CreateWorkspaceRoom(ctx, "u4", "  Release Train!  ")
	if err != nil {
		t.Fatalf("create workspace room: %v", err)
	}
	if ws.Project.Name != "Release Train!" || !strings.HasPrefix(ws.Project.Slug, "release-train-") {
		t.Fatalf("unexpected project: %+v", ws.Project)
	}
	if ws.Room.ID == "" || ws.Room.ProjectID != ws.Project.ID || ws.Room.Name != "Release Train!" {
		t.Fatalf("unexpected room: %+v", ws.Room)
	}

	ok, err := st.IsMember(ctx, "u4", ws.Room.ID)
	if err != nil || !ok {
		t.Fatalf("creator must be a member of the new room, got %v, %v", ok, err)
	}
	pm, err := st.GetProjectMember(ctx, ws.Project.ID, "u4")
	if err != nil || pm.Role != store.RoleOwner {
		t.Fatalf("creator must own the project, got %+v, %v", pm, err)
	}

	// The same name twice yields two workspaces.
	again, err := svc.CreateWorkspaceRoom(ctx, "u4", "Release Train!")
	if err != nil {
		t.Fatalf("create second workspace: %v", err)
	}
	if again.Project.Slug == ws.Project.Slug {
		t.Fatalf("expected distinct slugs, got %q twice", ws.Project.Slug)
	}

	for _, name := range []string{"", "   ", strings.Repeat("n", 121)} {
		_, err := svc.CreateWorkspaceRoom(ctx, "u4", name)
		var vErr *store.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError for %d chars, got %v", len(name), err)
		}
	}
}

func TestDeleteProject(t *testing.T) {
	st := newStore(t)
	svc := New(st)
	ctx := context.Background()

	fx := storetest.Seed(t, st, "owner")
	storetest.AddMember(t, st, fx.RoomID, "member")

	if err := svc.Delete(ctx, "member", fx.ProjectID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a member, got %v", err)
	}
	if err := svc.Delete(ctx, "stranger", fx.ProjectID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a stranger, got %v", err)
	}

	if err := svc.Delete(ctx, "owner", fx.ProjectID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, userID := range []string{"owner", "member"} {
		ok, err := st.IsMember(ctx, userID, fx.RoomID)
		if err != nil {
			t.Fatalf("IsMember: %v", err)
		}
		if ok {
			t.Fatalf("%s kept access to a room of a deleted project", userID)
		}
	}
	if err := svc.Delete(ctx, "owner", fx.ProjectID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestSetProjectVisibility(t *testing.T) {
	st := newStore(t)
	svc := New(st)
	ctx := context.Background()

	projectID := mustSidebar(t, svc, "u5")[0].ID
	roomID := mustSidebar(t, svc, "u5")[0].Rooms[0].ID

	if err := svc.SetVisibility(ctx, "u5", projectID, false); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if got := mustSidebar(t, svc, "u5"); len(got) != 0 {
		t.Fatalf("hidden project must be omitted, got %+v", got)
	}
	ok, err := st.IsMember(ctx, "u5", roomID)
	if err != nil || !ok {
		t.Fatalf("hiding a project must keep room access, got %v, %v", ok, err)
	}

	if err := svc.SetVisibility(ctx, "u5", projectID, true); err != nil {
		t.Fatalf("show: %v", err)
	}
	if got := mustSidebar(t, svc, "u5"); len(got) != 1 {
		t.Fatalf("shown project must be listed, got %+v", got)
	}

	if err := svc.SetVisibility(ctx, "stranger", projectID, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a stranger, got %v", err)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"General", "general"},
		{"  Dev -- Sync  ", "dev-sync"},
		{"Ünïcode Room 2", "ünïcode-room-2"},
		{"!!!", "workspace"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func mustSidebar(t *testing.T, svc *Service, userID string) []*store.SidebarProject {
	t.Helper()
	projects, err := svc.Sidebar(context.Background(), userID)
	if err != nil {
		t.Fatalf("sidebar: %v", err)
	}
	return projects
}
