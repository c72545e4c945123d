// Package storetest holds behaviour tests shared by every store.Store implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/teamchat-server/internal/store"
)

// Factory returns an empty store with the schema applied.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Membership", func(t *testing.T) { testMembership(t, newStore(t)) })
	t.Run("MessageRoundTrip", func(t *testing.T) { testMessageRoundTrip(t, newStore(t)) })
	t.Run("MessageOrderAndLimit", func(t *testing.T) { testMessageOrderAndLimit(t, newStore(t)) })
	t.Run("MessageValidation", func(t *testing.T) { testMessageValidation(t, newStore(t)) })
	t.Run("SenderEnrichment", func(t *testing.T) { testSenderEnrichment(t, newStore(t)) })
	t.Run("RoomLifecycle", func(t *testing.T) { testRoomLifecycle(t, newStore(t)) })
	t.Run("Sidebar", func(t *testing.T) { testSidebar(t, newStore(t)) })
	t.Run("AddRoomMember", func(t *testing.T) { testAddRoomMember(t, newStore(t)) })
	t.Run("ProjectLifecycle", func(t *testing.T) { testProjectLifecycle(t, newStore(t)) })
	t.Run("CreateUser", func(t *testing.T) { testCreateUser(t, newStore(t)) })
}

func strPtr(s string) *string { return &s }

// Fixture is a project with one room and its owner.
type Fixture struct {
	OwnerID   string
	ProjectID string
	RoomID    string
}

// Seed creates a user, a project owned by them and a single room.
func Seed(t *testing.T, st store.Store, ownerID string) Fixture {
	t.Helper()
	ctx := context.Background()

	if err := st.EnsureUser(ctx, &store.User{ID: ownerID, Username: strPtr(ownerID)}); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	project := &store.Project{Name: "Project " + ownerID, Slug: "project-" + ownerID}
	if err := st.CreateProjectWithRooms(ctx, project, ownerID, nil); err != nil {
		t.Fatalf("create project: %v", err)
	}
	room := &store.Room{ProjectID: project.ID, Name: "general"}
	if err := st.CreateRoom(ctx, room, ownerID, store.RoleOwner); err != nil {
		t.Fatalf("create room: %v", err)
	}
	return Fixture{OwnerID: ownerID, ProjectID: project.ID, RoomID: room.ID}
}

// AddMember creates userID and grants them membership of roomID.
func AddMember(t *testing.T, st store.Store, roomID, userID string) {
	t.Helper()
	ctx := context.Background()

	if err := st.EnsureUser(ctx, &store.User{ID: userID, Username: strPtr(userID)}); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if err := st.AddRoomMember(ctx, roomID, userID, store.RoleMember); err != nil {
		t.Fatalf("add room member: %v", err)
	}
}

func testMembership(t *testing.T, st store.Store) {
	ctx := context.Background()
	fx := Seed(t, st, "owner-1")

	ok, err := st.IsMember(ctx, fx.OwnerID, fx.RoomID)
	if err != nil || !ok {
		t.Fatalf("expected owner to be a member, got %v, %v", ok, err)
	}

	for _, tc := range []struct{ user, room string }{
		{"stranger", fx.RoomID},
		{fx.OwnerID, "no-such-room"},
		{"", ""},
	} {
		ok, err := st.IsMember(ctx, tc.user, tc.room)
		if err != nil {
			t.Fatalf("IsMember(%q, %q) error: %v", tc.user, tc.room, err)
		}
		if ok {
			t.Fatalf("IsMember(%q, %q) = true, want false", tc.user, tc.room)
		}
	}

	hidden := time.Now()
	if err := st.SetRoomHidden(ctx, fx.RoomID, fx.OwnerID, &hidden); err != nil {
		t.Fatalf("hide room: %v", err)
	}
	if ok, _ := st.IsMember(ctx, fx.OwnerID, fx.RoomID); !ok {
		t.Fatal("hidden membership must keep access")
	}

	if err := st.SoftDeleteRoom(ctx, fx.RoomID, time.Now()); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if ok, _ := st.IsMember(ctx, fx.OwnerID, fx.RoomID); ok {
		t.Fatal("deleted room must not grant membership")
	}
}

func testMessageRoundTrip(t *testing.T, st store.Store) {
	ctx := context.Background()
	fx := Seed(t, st, "owner-2")

	created, err := st.CreateMessage(ctx, fx.RoomID, fx.OwnerID, "  hello world  ", store.MessageTypeCode)
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", created)
	}
	if created.Content != "hello world" || created.Type != store.MessageTypeCode {
		t.Fatalf("unexpected created message: %+v", created)
	}

	defaulted, err := st.CreateMessage(ctx, fx.RoomID, fx.OwnerID, "plain", "")
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if defaulted.Type != store.MessageTypeText {
		t.Fatalf("expected default type TEXT, got %s", defaulted.Type)
	}

	listed, err := st.ListMessages(ctx, fx.RoomID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	count := 0
	for _, m := range listed {
		if m.ID == created.ID {
			count++
			if m.Content != created.Content || m.Type != created.Type || m.SenderID != fx.OwnerID || m.RoomID != fx.RoomID {
				t.Fatalf("listed message differs: %+v vs %+v", m, created)
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected created message exactly once, found %d", count)
	}
}

func testMessageOrderAndLimit(t *testing.T, st store.Store) {
	ctx := context.Background()
	fx := Seed(t, st, "owner-3")

	const n = 12
	for i := range n {
		if _, err := st.CreateMessage(ctx, fx.RoomID, fx.OwnerID, fmt.Sprintf("msg-%02d", i), store.MessageTypeText); err != nil {
			t.Fatalf("create message %d: %v", i, err)
		}
	}

	all, err := st.ListMessages(ctx, fx.RoomID, 100)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(all) != n {
		t.Fatalf("expected %d messages, got %d", n, len(all))
	}
	for i, m := range all {
		if want := fmt.Sprintf("msg-%02d", i); m.Content != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, m.Content)
		}
	}

	first, err := st.ListMessages(ctx, fx.RoomID, 5)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(first) != 5 || first[0].Content != "msg-00" || first[4].Content != "msg-04" {
		t.Fatalf("expected the five oldest in order, got %d starting %q", len(first), first[0].Content)
	}

	other := Seed(t, st, "owner-3b")
	empty, err := st.ListMessages(ctx, other.RoomID, 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("messages leaked across rooms: %d", len(empty))
	}
}

func testMessageValidation(t *testing.T, st store.Store) {
	ctx := context.Background()
	fx := Seed(t, st, "owner-4")

	if _, err := st.CreateMessage(ctx, fx.RoomID, fx.OwnerID, strings.Repeat("x", store.MaxContentLength), store.MessageTypeText); err != nil {
		t.Fatalf("max length content must be accepted: %v", err)
	}

	for _, content := range []string{"", "   ", strings.Repeat("x", store.MaxContentLength+1)} {
		_, err := st.CreateMessage(ctx, fx.RoomID, fx.OwnerID, content, store.MessageTypeText)
		var vErr *store.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError for %d chars, got %v", len(content), err)
		}
	}

	listed, err := st.ListMessages(ctx, fx.RoomID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("rejected messages must not be stored, have %d", len(listed))
	}
}

func testSenderEnrichment(t *testing.T, st store.Store) {
	ctx := context.Background()
	fx := Seed(t, st, "owner-5")

	users := []*store.User{
		{ID: "display", DisplayName: strPtr("Dee"), Username: strPtr("dee"), AvatarURL: strPtr("https://a/1.png"), Image: strPtr("https://i/1.png")},
		{ID: "named", Name: strPtr("Nora"), Image: strPtr("https://i/2.png")},
		{ID: "bare"},
	}
	for _, u := range users {
		if err := st.EnsureUser(ctx, u); err != nil {
			t.Fatalf("ensure user: %v", err)
		}
	}
	// EnsureUser never overwrites.
	if err := st.EnsureUser(ctx, &store.User{ID: "display", DisplayName: strPtr("Changed")}); err != nil {
		t.Fatalf("ensure user again: %v", err)
	}

	want := map[string]struct {
		name   string
		avatar string
	}{
		"display": {"Dee", "https://a/1.png"},
		"named":   {"Nora", "https://i/2.png"},
		"bare":    {"Unknown", ""},
		"ghost":   {"Unknown", ""},
	}
	for _, id := range []string{"display", "named", "bare", "ghost"} {
		msg, err := st.CreateMessage(ctx, fx.RoomID, id, "hi from "+id, store.MessageTypeText)
		if err != nil {
			t.Fatalf("create message: %v", err)
		}
		checkSender(t, msg, want[id].name, want[id].avatar)
	}

	listed, err := st.ListMessages(ctx, fx.RoomID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	for _, msg := range listed {
		w := want[msg.SenderID]
		checkSender(t, msg, w.name, w.avatar)
	}
}

func checkSender(t *testing.T, msg *store.Message, name, avatar string) {
	t.Helper()
	if msg.SenderName != name {
		t.Fatalf("sender %s: expected name %q, got %q", msg.SenderID, name, msg.SenderName)
	}
	got := ""
	if msg.SenderAvatarURL != nil {
		got = *msg.SenderAvatarURL
	}
	if got != avatar {
		t.Fatalf("sender %s: expected avatar %q, got %q", msg.SenderID, avatar, got)
	}
}

func testRoomLifecycle(t *testing.T, st store.Store) {
	ctx := context.Background()
	fx := Seed(t, st, "owner-6")

	room, err := st.GetRoomForMember(ctx, fx.RoomID, fx.OwnerID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.Name != "general" || room.ProjectID != fx.ProjectID {
		t.Fatalf("unexpected room: %+v", room)
	}

	if _, err := st.GetRoomForMember(ctx, fx.RoomID, "stranger"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-member, got %v", err)
	}

	member, err := st.GetRoomMember(ctx, fx.RoomID, fx.OwnerID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if member.Role != store.RoleOwner || member.HiddenAt != nil {
		t.Fatalf("unexpected member: %+v", member)
	}

	now := time.Now()
	if err := st.SetRoomHidden(ctx, fx.RoomID, fx.OwnerID, &now); err != nil {
		t.Fatalf("hide: %v", err)
	}
	member, _ = st.GetRoomMember(ctx, fx.RoomID, fx.OwnerID)
	if member.HiddenAt == nil {
		t.Fatal("expected hidden_at to be set")
	}
	if err := st.SetRoomHidden(ctx, fx.RoomID, fx.OwnerID, nil); err != nil {
		t.Fatalf("unhide: %v", err)
	}
	member, _ = st.GetRoomMember(ctx, fx.RoomID, fx.OwnerID)
	if member.HiddenAt != nil {
		t.Fatal("expected hidden_at to be cleared")
	}
	if err := st.SetRoomHidden(ctx, fx.RoomID, "stranger", nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound hiding for non-member, got %v", err)
	}

	if err := st.SoftDeleteRoom(ctx, fx.RoomID, now); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := st.GetRoomForMember(ctx, fx.RoomID, fx.OwnerID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("deleted room must be hidden from members, got %v", err)
	}
	deleted, err := st.GetRoomByID(ctx, fx.RoomID)
	if err != nil {
		t.Fatalf("get deleted room by id: %v", err)
	}
	if deleted.DeletedAt == nil {
		t.Fatal("expected deleted_at to be set")
	}
	if err := st.SoftDeleteRoom(ctx, fx.RoomID, now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete should report ErrNotFound, got %v", err)
	}
}

func testSidebar(t *testing.T, st store.Store) {
	ctx := context.Background()
	const userID = "owner-7"

	has, err := st.HasProjectMembership(ctx, userID)
	if err != nil || has {
		t.Fatalf("fresh user must have no projects, got %v, %v", has, err)
	}

	project := &store.Project{Name: "Getting Started", Slug: "starter-" + userID}
	seeds := []store.SeedRoom{{Name: "General", Role: store.RoleOwner}, {Name: "Dev Sync", Role: store.RoleMember}}
	if err := st.CreateProjectWithRooms(ctx, project, userID, seeds); err != nil {
		t.Fatalf("create project: %v", err)
	}
	if seeds[0].ID == "" || seeds[1].ID == "" || seeds[0].ID == seeds[1].ID {
		t.Fatalf("expected distinct seed room ids, got %+v", seeds)
	}

	dup := &store.Project{Name: "Again", Slug: project.Slug}
	if err := st.CreateProjectWithRooms(ctx, dup, userID, nil); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for a taken slug, got %v", err)
	}

	has, err = st.HasProjectMembership(ctx, userID)
	if err != nil || !has {
		t.Fatalf("expected project membership, got %v, %v", has, err)
	}

	pm, err := st.GetProjectMember(ctx, project.ID, userID)
	if err != nil || pm.Role != store.RoleOwner {
		t.Fatalf("expected owner project membership, got %+v, %v", pm, err)
	}

	sidebar, err := st.ListSidebar(ctx, userID)
	if err != nil {
		t.Fatalf("list sidebar: %v", err)
	}
	if len(sidebar) != 1 || len(sidebar[0].Rooms) != 2 {
		t.Fatalf("unexpected sidebar: %+v", sidebar)
	}
	if sidebar[0].Rooms[0].Name != "General" || sidebar[0].Rooms[0].MemberRole != store.RoleOwner {
		t.Fatalf("unexpected first room: %+v", sidebar[0].Rooms[0])
	}
	if sidebar[0].Rooms[1].Name != "Dev Sync" || sidebar[0].Rooms[1].MemberRole != store.RoleMember {
		t.Fatalf("unexpected second room: %+v", sidebar[0].Rooms[1])
	}

	hidden := time.Now()
	if err := st.SetRoomHidden(ctx, sidebar[0].Rooms[1].ID, userID, &hidden); err != nil {
		t.Fatalf("hide room: %v", err)
	}
	sidebar, err = st.ListSidebar(ctx, userID)
	if err != nil {
		t.Fatalf("list sidebar: %v", err)
	}
	if len(sidebar) != 1 || len(sidebar[0].Rooms) != 1 {
		t.Fatalf("hidden room must be omitted, got %+v", sidebar)
	}

	if err := st.SetProjectHidden(ctx, project.ID, userID, &hidden); err != nil {
		t.Fatalf("hide project: %v", err)
	}
	sidebar, err = st.ListSidebar(ctx, userID)
	if err != nil {
		t.Fatalf("list sidebar: %v", err)
	}
	if len(sidebar) != 0 {
		t.Fatalf("hidden project must be omitted, got %+v", sidebar)
	}

	if err := st.SetProjectHidden(ctx, project.ID, userID, nil); err != nil {
		t.Fatalf("unhide project: %v", err)
	}
	sidebar, err = st.ListSidebar(ctx, userID)
	if err != nil {
		t.Fatalf("list sidebar: %v", err)
	}
	if len(sidebar) != 1 {
		t.Fatalf("unhidden project must be listed, got %+v", sidebar)
	}
	if err := st.SetProjectHidden(ctx, project.ID, "stranger", nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound hiding for non-member, got %v", err)
	}
}

func testAddRoomMember(t *testing.T, st store.Store) {
	ctx := context.Background()
	fx := Seed(t, st, "owner-8")

	AddMember(t, st, fx.RoomID, "guest")
	AddMember(t, st, fx.RoomID, "guest")

	ok, err := st.IsMember(ctx, "guest", fx.RoomID)
	if err != nil || !ok {
		t.Fatalf("expected guest to be a member, got %v, %v", ok, err)
	}
	pm, err := st.GetProjectMember(ctx, fx.ProjectID, "guest")
	if err != nil || pm.Role != store.RoleMember {
		t.Fatalf("expected member project membership, got %+v, %v", pm, err)
	}

	// The owner's existing role is preserved.
	if err := st.AddRoomMember(ctx, fx.RoomID, fx.OwnerID, store.RoleMember); err != nil {
		t.Fatalf("re-add owner: %v", err)
	}
	owner, err := st.GetRoomMember(ctx, fx.RoomID, fx.OwnerID)
	if err != nil || owner.Role != store.RoleOwner {
		t.Fatalf("owner role changed: %+v, %v", owner, err)
	}

	if err := st.AddRoomMember(ctx, "no-such-room", "guest", store.RoleMember); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing room, got %v", err)
	}
}

func testProjectLifecycle(t *testing.T, st store.Store) {
	ctx := context.Background()
	fx := Seed(t, st, "owner-9")
	AddMember(t, st, fx.RoomID, "teammate")

	if err := st.SoftDeleteProject(ctx, fx.ProjectID, time.Now()); err != nil {
		t.Fatalf("soft delete project: %v", err)
	}

	for _, userID := range []string{fx.OwnerID, "teammate"} {
		ok, err := st.IsMember(ctx, userID, fx.RoomID)
		if err != nil {
			t.Fatalf("IsMember: %v", err)
		}
		if ok {
			t.Fatalf("rooms of a deleted project must not grant membership to %s", userID)
		}
		if _, err := st.GetRoomForMember(ctx, fx.RoomID, userID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for room of deleted project, got %v", err)
		}
		if _, err := st.GetProjectMember(ctx, fx.ProjectID, userID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for deleted project membership, got %v", err)
		}
	}

	sidebar, err := st.ListSidebar(ctx, fx.OwnerID)
	if err != nil {
		t.Fatalf("list sidebar: %v", err)
	}
	if len(sidebar) != 0 {
		t.Fatalf("deleted project must be omitted, got %+v", sidebar)
	}

	if err := st.SoftDeleteProject(ctx, fx.ProjectID, time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete should report ErrNotFound, got %v", err)
	}
	now := time.Now()
	if err := st.SetProjectHidden(ctx, fx.ProjectID, fx.OwnerID, &now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("hiding a deleted project should report ErrNotFound, got %v", err)
	}
}

func testCreateUser(t *testing.T, st store.Store) {
	ctx := context.Background()

	user := &store.User{Username: strPtr("neo"), DisplayName: strPtr("Neo"), Name: strPtr("Neo")}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.ID == "" || user.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", user)
	}

	got, err := st.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Label() != "Neo" || got.Username == nil || *got.Username != "neo" {
		t.Fatalf("unexpected stored user: %+v", got)
	}

	if err := st.CreateUser(ctx, &store.User{ID: user.ID}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for a duplicate id, got %v", err)
	}
}
