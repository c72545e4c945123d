package http

import (
	"net/http"
	"testing"
)

func sidebarHasProject(body SidebarResponse, projectID string) bool {
	for _, p := range body.Projects {
		if p.ID == projectID {
			return true
		}
	}
	return false
}

func TestCreateWorkspaceRoom(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/projects/rooms", "alice", map[string]string{"name": "  Launch Plan  "})
	expectStatus(t, resp, http.StatusCreated)

	var created WorkspaceRoomResponse
	decodeBody(t, resp, &created)
	if created.Project.ID == "" || created.Project.Name != "Launch Plan" || created.Project.CreatedAt == "" {
		t.Fatalf("unexpected project: %+v", created.Project)
	}
	if created.Room.ID == "" || created.Room.Name != "Launch Plan" || created.Room.ProjectID != created.Project.ID {
		t.Fatalf("unexpected room: %+v", created.Room)
	}

	resp = env.do(t, http.MethodGet, "/api/chat/rooms/"+created.Room.ID+"/messages", "alice", nil)
	expectStatus(t, resp, http.StatusOK)
	resp = env.do(t, http.MethodGet, "/api/chat/rooms/"+created.Room.ID+"/messages", "bob", nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp = env.do(t, http.MethodGet, "/api/projects/sidebar", "alice", nil)
	expectStatus(t, resp, http.StatusOK)
	var body SidebarResponse
	decodeBody(t, resp, &body)
	if !sidebarHasProject(body, created.Project.ID) {
		t.Fatalf("new project missing from sidebar: %+v", body.Projects)
	}
}

func TestCreateWorkspaceRoomValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		user   string
		body   any
		status int
	}{
		{name: "no session", user: "", body: map[string]string{"name": "x"}, status: http.StatusUnauthorized},
		{name: "missing name", user: "alice", body: map[string]string{}, status: http.StatusBadRequest},
		{name: "blank name", user: "alice", body: map[string]string{"name": "   "}, status: http.StatusBadRequest},
		{name: "malformed body", user: "alice", body: `{"name":`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/projects/rooms", tt.user, tt.body)
			expectStatus(t, resp, tt.status)
		})
	}
}

func TestDeleteProject(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/projects/" + env.fx.ProjectID

	resp := env.do(t, http.MethodDelete, path, "carol", nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = env.do(t, http.MethodDelete, path, "bob", nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp = env.do(t, http.MethodDelete, path, "alice", nil)
	expectStatus(t, resp, http.StatusNoContent)

	// Rooms of a deleted project are gone for every member.
	resp = env.do(t, http.MethodGet, "/api/chat/rooms/"+env.fx.RoomID+"/messages", "bob", nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp = env.do(t, http.MethodGet, "/api/rooms/"+env.fx.RoomID, "alice", nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = env.do(t, http.MethodDelete, path, "alice", nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestProjectVisibility(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/projects/" + env.fx.ProjectID + "/visibility"

	resp := env.do(t, http.MethodPatch, path, "bob", map[string]bool{"visible": false})
	expectStatus(t, resp, http.StatusNoContent)

	var body SidebarResponse
	resp = env.do(t, http.MethodGet, "/api/projects/sidebar", "bob", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &body)
	if sidebarHasProject(body, env.fx.ProjectID) {
		t.Fatalf("hidden project listed in sidebar: %+v", body.Projects)
	}

	// Hiding is per member and does not revoke access.
	resp = env.do(t, http.MethodGet, "/api/chat/rooms/"+env.fx.RoomID+"/messages", "bob", nil)
	expectStatus(t, resp, http.StatusOK)
	resp = env.do(t, http.MethodGet, "/api/projects/sidebar", "alice", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &body)
	if !sidebarHasProject(body, env.fx.ProjectID) {
		t.Fatalf("project hidden for another member: %+v", body.Projects)
	}

	resp = env.do(t, http.MethodPatch, path, "bob", map[string]bool{"visible": true})
	expectStatus(t, resp, http.StatusNoContent)
	resp = env.do(t, http.MethodGet, "/api/projects/sidebar", "bob", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &body)
	if !sidebarHasProject(body, env.fx.ProjectID) {
		t.Fatalf("shown project missing from sidebar: %+v", body.Projects)
	}

	resp = env.do(t, http.MethodPatch, path, "bob", map[string]string{})
	expectStatus(t, resp, http.StatusBadRequest)
	resp = env.do(t, http.MethodPatch, path, "carol", map[string]bool{"visible": false})
	expectStatus(t, resp, http.StatusNotFound)
}
