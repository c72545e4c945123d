package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/teamchat-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, wait time.Duration) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(wait):
	}
}

// fakeGate answers membership from a fixed set of user/room pairs.
type fakeGate struct {
	mu      sync.Mutex
	members map[string]bool
	err     error
}

func newFakeGate(pairs ...string) *fakeGate {
	g := &fakeGate{members: make(map[string]bool)}
	for i := 0; i+1 < len(pairs); i += 2 {
		g.members[pairs[i]+"/"+pairs[i+1]] = true
	}
	return g
}

func (g *fakeGate) IsMember(_ context.Context, userID, roomID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	return g.members[userID+"/"+roomID], nil
}

var errGateDown = errors.New("gate down")

func startHub(t *testing.T, gate store.MembershipGate) (*Hub, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(gate, nil)
	go hub.Run(ctx)
	return hub, ctx
}

func testMessage(id, roomID string) *store.Message {
	return &store.Message{
		ID:         id,
		RoomID:     roomID,
		SenderID:   "alice",
		SenderName: "Alice",
		Type:       store.MessageTypeText,
		Content:    "hi",
		CreatedAt:  time.Now().UTC(),
	}
}
