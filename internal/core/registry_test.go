package core

import "testing"

func TestRegistryBindAndRemove(t *testing.T) {
	r := NewRegistry()
	a := NewClient("a", "alice", 0)
	b := NewClient("b", "bob", 0)

	if r.Bind(a, "r1") {
		t.Fatal("bind of unregistered client should fail")
	}

	r.Add(a)
	r.Add(a)
	r.Add(b)
	if !r.Has(a) || !r.Has(b) {
		t.Fatal("registered clients should be present")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 clients, got %d", r.Len())
	}
	if _, ok := r.RoomOf(a); ok {
		t.Fatal("new client should have no room")
	}

	r.Bind(a, "r1")
	r.Bind(b, "r1")
	r.Bind(a, "r2")

	if room, _ := r.RoomOf(a); room != "r2" {
		t.Fatalf("expected r2, got %q", room)
	}

	var inR1 []string
	r.ForEachSubscriber("r1", func(c *Client) { inR1 = append(inR1, c.ID) })
	if len(inR1) != 1 || inR1[0] != "b" {
		t.Fatalf("unexpected r1 subscribers: %v", inR1)
	}

	if !r.Remove(b) {
		t.Fatal("expected remove to report presence")
	}
	if r.Remove(b) {
		t.Fatal("second remove should be a no-op")
	}
	if r.Has(b) {
		t.Fatal("removed client should be absent")
	}
	if r.Rooms() != 1 {
		t.Fatalf("empty room should be pruned, have %d rooms", r.Rooms())
	}
}
