package utils

import "github.com/google/uuid"

// NewID returns a random identifier for users, projects, rooms, messages and connections.
func NewID() string {
	return uuid.NewString()
}
