package http

import (
	"net/http"
	"strings"
	"testing"

	"github.com/vovakirdan/teamchat-server/internal/config"
)

func TestChatRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/chat/rooms/"+env.fx.RoomID+"/messages", "", nil)
	expectStatus(t, resp, http.StatusUnauthorized)

	var body ErrorResponse
	decodeBody(t, resp, &body)
	if body.Error != "Unauthorized" {
		t.Fatalf("unexpected error body: %+v", body)
	}

	resp = env.do(t, http.MethodPost, "/api/chat/messages", "", map[string]string{
		"roomId":  env.fx.RoomID,
		"content": "hello",
	})
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestCreateAndListMessages(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/chat/messages", "bob", map[string]string{
		"roomId":  env.fx.RoomID,
		"content": "  hello team  ",
		"type":    "NOT_A_TYPE",
	})
	expectStatus(t, resp, http.StatusCreated)

	var created MessageResponse
	decodeBody(t, resp, &created)
	msg := created.Message
	if msg.ID == "" || msg.RoomID != env.fx.RoomID || msg.SenderID != "bob" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Content != "hello team" {
		t.Fatalf("expected trimmed content, got %q", msg.Content)
	}
	if msg.Type != "TEXT" {
		t.Fatalf("expected unknown type to fall back to TEXT, got %q", msg.Type)
	}
	if msg.SenderName != "bob" || msg.SenderAvatarURL != nil {
		t.Fatalf("unexpected sender fields: %q %v", msg.SenderName, msg.SenderAvatarURL)
	}
	if !strings.HasSuffix(msg.CreatedAt, "Z") {
		t.Fatalf("expected UTC timestamp, got %q", msg.CreatedAt)
	}

	env.postMessage(t, "alice", env.fx.RoomID, "func main() {}")

	resp = env.do(t, http.MethodGet, "/api/chat/rooms/"+env.fx.RoomID+"/messages", "alice", nil)
	expectStatus(t, resp, http.StatusOK)

	var list MessageListResponse
	decodeBody(t, resp, &list)
	if len(list.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(list.Messages))
	}
	if list.Messages[0].ID != msg.ID || list.Messages[1].SenderID != "alice" {
		t.Fatalf("messages out of order: %+v", list.Messages)
	}
}

func TestListMessagesLimit(t *testing.T) {
	env := newTestEnv(t)

	for _, content := range []string{"one", "two", "three"} {
		env.postMessage(t, "alice", env.fx.RoomID, content)
	}

	resp := env.do(t, http.MethodGet, "/api/chat/rooms/"+env.fx.RoomID+"/messages?limit=2", "alice", nil)
	expectStatus(t, resp, http.StatusOK)

	var list MessageListResponse
	decodeBody(t, resp, &list)
	if len(list.Messages) != 2 || list.Messages[0].Content != "one" || list.Messages[1].Content != "two" {
		t.Fatalf("expected the two oldest messages in order, got %+v", list.Messages)
	}
}

func TestListMessagesEmptyRoom(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/chat/rooms/"+env.fx.RoomID+"/messages", "bob", nil)
	expectStatus(t, resp, http.StatusOK)

	var raw map[string][]any
	decodeBody(t, resp, &raw)
	if msgs, ok := raw["messages"]; !ok || msgs == nil || len(msgs) != 0 {
		t.Fatalf("expected an empty messages array, got %v", raw)
	}
}

func TestCreateMessageValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		user   string
		body   any
		status int
	}{
		{
			name:   "missing room",
			user:   "alice",
			body:   map[string]string{"content": "hi"},
			status: http.StatusBadRequest,
		},
		{
			name:   "whitespace content",
			user:   "alice",
			body:   map[string]string{"roomId": env.fx.RoomID, "content": " \n\t "},
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed body",
			user:   "alice",
			body:   `{"roomId":`,
			status: http.StatusBadRequest,
		},
		{
			name:   "content at limit",
			user:   "alice",
			body:   map[string]string{"roomId": env.fx.RoomID, "content": strings.Repeat("é", 5000)},
			status: http.StatusCreated,
		},
		{
			name:   "content over limit",
			user:   "alice",
			body:   map[string]string{"roomId": env.fx.RoomID, "content": strings.Repeat("a", 5001)},
			status: http.StatusBadRequest,
		},
		{
			name:   "not a member",
			user:   "carol",
			body:   map[string]string{"roomId": env.fx.RoomID, "content": "let me in"},
			status: http.StatusForbidden,
		},
		{
			name:   "unknown room",
			user:   "alice",
			body:   map[string]string{"roomId": "no-such-room", "content": "hello?"},
			status: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/chat/messages", tt.user, tt.body)
			expectStatus(t, resp, tt.status)
		})
	}

	// Only the accepted message was stored.
	resp := env.do(t, http.MethodGet, "/api/chat/rooms/"+env.fx.RoomID+"/messages", "alice", nil)
	expectStatus(t, resp, http.StatusOK)
	var list MessageListResponse
	decodeBody(t, resp, &list)
	if len(list.Messages) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(list.Messages))
	}
}

func TestListMessagesForbidden(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/chat/rooms/"+env.fx.RoomID+"/messages", "carol", nil)
	expectStatus(t, resp, http.StatusForbidden)

	var body ErrorResponse
	decodeBody(t, resp, &body)
	if body.Error == "" || body.Details == "" {
		t.Fatalf("expected error and details, got %+v", body)
	}
}

func TestCreateMessageRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimit.MessagesPerMinute = 2
	})

	env.postMessage(t, "alice", env.fx.RoomID, "one")
	env.postMessage(t, "alice", env.fx.RoomID, "two")

	resp := env.do(t, http.MethodPost, "/api/chat/messages", "alice", map[string]string{
		"roomId":  env.fx.RoomID,
		"content": "three",
	})
	expectStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	// Limits are per user.
	env.postMessage(t, "bob", env.fx.RoomID, "bob is fine")
}
