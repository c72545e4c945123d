package core

// Registry tracks live clients and their room binding.
// It is not safe for concurrent use; the Hub goroutine owns it.
type Registry struct {
	clients map[*Client]string
	rooms   map[string]map[*Client]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[*Client]string),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Add inserts a client with no subscription. Adding twice is a no-op.
func (r *Registry) Add(c *Client) {
	if _, exists := r.clients[c]; exists {
		return
	}
	r.clients[c] = ""
}

// Remove deletes a client and its subscription. Returns true if it was present.
func (r *Registry) Remove(c *Client) bool {
	room, exists := r.clients[c]
	if !exists {
		return false
	}
	r.unbind(c, room)
	delete(r.clients, c)
	return true
}

// Has reports whether c is registered.
func (r *Registry) Has(c *Client) bool {
	_, ok := r.clients[c]
	return ok
}

// Bind replaces the client's subscription with roomID.
// Returns false if the client is not registered.
func (r *Registry) Bind(c *Client, roomID string) bool {
	current, exists := r.clients[c]
	if !exists {
		return false
	}
	if current == roomID {
		return true
	}
	r.unbind(c, current)

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[roomID] = members
	}
	members[c] = struct{}{}
	r.clients[c] = roomID
	return true
}

// RoomOf returns the client's current subscription, if any.
func (r *Registry) RoomOf(c *Client) (string, bool) {
	room, exists := r.clients[c]
	if !exists || room == "" {
		return "", false
	}
	return room, true
}

// ForEachSubscriber calls fn for every client bound to roomID.
func (r *Registry) ForEachSubscriber(roomID string, fn func(*Client)) {
	for c := range r.rooms[roomID] {
		fn(c)
	}
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	return len(r.clients)
}

// Rooms returns the number of rooms with at least one subscriber.
func (r *Registry) Rooms() int {
	return len(r.rooms)
}

func (r *Registry) unbind(c *Client, roomID string) {
	if roomID == "" {
		return
	}
	members := r.rooms[roomID]
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}
