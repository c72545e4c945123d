package chat

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vovakirdan/teamchat-server/internal/store"
	"github.com/vovakirdan/teamchat-server/internal/store/sqlite"
	"github.com/vovakirdan/teamchat-server/internal/store/storetest"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs []*store.Message
}

func (b *recordingBroadcaster) BroadcastMessage(msg *store.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
}

func (b *recordingBroadcaster) published() []*store.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*store.Message(nil), b.msgs...)
}

type failingStore struct {
	Store
}

var errStorage = errors.New("storage unavailable")

func (failingStore) CreateMessage(context.Context, string, string, string, store.MessageType) (*store.Message, error) {
	return nil, errStorage
}

func setupService(t *testing.T) (*Service, *recordingBroadcaster, store.Store, storetest.Fixture) {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		return sqlite.ApplySchema(context.Background(), db)
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	fx := storetest.Seed(t, st, "alice")
	storetest.AddMember(t, st, fx.RoomID, "bob")

	b := &recordingBroadcaster{}
	return New(st, b, nil), b, st, fx
}

func TestCreateMessageBroadcastsAndRoundTrips(t *testing.T) {
	svc, b, _, fx := setupService(t)
	ctx := context.Background()

	msg, err := svc.CreateMessage(ctx, "bob", fx.RoomID, "  hello  ", "")
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if msg.Content != "hello" || msg.Type != store.MessageTypeText || msg.SenderID != "bob" || msg.SenderName != "bob" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	pub := b.published()
	if len(pub) != 1 || pub[0].ID != msg.ID {
		t.Fatalf("expected one broadcast of %s, got %+v", msg.ID, pub)
	}

	listed, err := svc.ListMessages(ctx, "alice", fx.RoomID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != msg.ID || listed[0].Content != msg.Content || listed[0].Type != msg.Type {
		t.Fatalf("unexpected listing: %+v", listed)
	}
}

func TestNonMemberIsForbidden(t *testing.T) {
	svc, b, _, fx := setupService(t)
	ctx := context.Background()

	if _, err := svc.ListMessages(ctx, "carol", fx.RoomID, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on list, got %v", err)
	}
	if _, err := svc.CreateMessage(ctx, "carol", fx.RoomID, "hi", store.MessageTypeText); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on create, got %v", err)
	}
	// Membership is checked before content.
	if _, err := svc.CreateMessage(ctx, "carol", fx.RoomID, "", store.MessageTypeText); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for invalid content from non-member, got %v", err)
	}
	if _, err := svc.ListMessages(ctx, "alice", "missing-room", 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for missing room, got %v", err)
	}
	if len(b.published()) != 0 {
		t.Fatal("rejected messages must not be broadcast")
	}
}

func TestCreateMessageContentBounds(t *testing.T) {
	svc, b, _, fx := setupService(t)
	ctx := context.Background()

	if _, err := svc.CreateMessage(ctx, "alice", fx.RoomID, strings.Repeat("é", store.MaxContentLength), store.MessageTypeText); err != nil {
		t.Fatalf("5000 characters must be accepted: %v", err)
	}

	for _, content := range []string{"", " \n\t ", strings.Repeat("a", store.MaxContentLength+1)} {
		_, err := svc.CreateMessage(ctx, "alice", fx.RoomID, content, store.MessageTypeText)
		var vErr *store.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	}
	if n := len(b.published()); n != 1 {
		t.Fatalf("expected only the valid message to be broadcast, got %d", n)
	}
}

func TestListMessagesPreservesCreationOrder(t *testing.T) {
	svc, _, _, fx := setupService(t)
	ctx := context.Background()

	want := []string{"one", "two", "three", "four"}
	for i, content := range want {
		sender := "alice"
		if i%2 == 1 {
			sender = "bob"
		}
		if _, err := svc.CreateMessage(ctx, sender, fx.RoomID, content, store.MessageTypeText); err != nil {
			t.Fatalf("create %q: %v", content, err)
		}
	}

	listed, err := svc.ListMessages(ctx, "bob", fx.RoomID, 500)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(listed) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(listed))
	}
	for i, m := range listed {
		if m.Content != want[i] {
			t.Fatalf("position %d: expected %q, got %q", i, want[i], m.Content)
		}
	}
}

func TestStorageFailureIsNotBroadcast(t *testing.T) {
	_, _, st, fx := setupService(t)
	b := &recordingBroadcaster{}
	svc := New(failingStore{Store: st}, b, nil)

	_, err := svc.CreateMessage(context.Background(), "alice", fx.RoomID, "hi", store.MessageTypeText)
	if !errors.Is(err, errStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatal("storage failure must not look like a permission error")
	}
	if len(b.published()) != 0 {
		t.Fatal("failed message must not be broadcast")
	}
}

func TestNilBroadcaster(t *testing.T) {
	_, _, st, fx := setupService(t)
	svc := New(st, nil, nil)

	if _, err := svc.CreateMessage(context.Background(), "alice", fx.RoomID, "quiet", store.MessageTypeText); err != nil {
		t.Fatalf("create message: %v", err)
	}
}
